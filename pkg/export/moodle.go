// Package export writes question sets in formats learning platforms import.
package export

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/Caia-Tech/caia-quizcheck/pkg/question"
)

// Format names an export format
type Format string

const (
	FormatMoodle Format = "moodle"
	FormatJSON   Format = "json"
)

// ParseFormat accepts "moodle", "xml", "moodlexml" and "json"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "moodle", "xml", "moodlexml", "moodle_xml":
		return FormatMoodle, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "application/xml"
}

// Extension returns the file extension of the format
func (f Format) Extension() string {
	if f == FormatJSON {
		return ".json"
	}
	return ".xml"
}

// Write renders a set in the given format
func Write(set *question.QuestionSet, format Format) ([]byte, error) {
	switch format {
	case FormatMoodle:
		return MoodleXML(set)
	case FormatJSON:
		return JSON(set)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// JSON renders the set as indented JSON
func JSON(set *question.QuestionSet) ([]byte, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode question set: %w", err)
	}
	return append(data, '\n'), nil
}

type moodleQuiz struct {
	XMLName   xml.Name         `xml:"quiz"`
	Questions []moodleQuestion `xml:"question"`
}

type moodleText struct {
	Format string `xml:"format,attr,omitempty"`
	Text   string `xml:"text"`
}

type moodleCDATA struct {
	Format string `xml:"format,attr,omitempty"`
	Text   cdata  `xml:"text"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

type moodleAnswer struct {
	Fraction  string       `xml:"fraction,attr"`
	Format    string       `xml:"format,attr,omitempty"`
	Text      cdata        `xml:"text"`
	Tolerance string       `xml:"tolerance,omitempty"`
	Feedback  *moodleCDATA `xml:"feedback,omitempty"`
}

type moodleSubquestion struct {
	Format string     `xml:"format,attr"`
	Text   cdata      `xml:"text"`
	Answer moodleText `xml:"answer"`
}

type moodleQuestion struct {
	Type            string              `xml:"type,attr"`
	Name            moodleText          `xml:"name"`
	QuestionText    moodleCDATA         `xml:"questiontext"`
	GeneralFeedback *moodleCDATA        `xml:"generalfeedback,omitempty"`
	DefaultGrade    string              `xml:"defaultgrade"`
	Single          string              `xml:"single,omitempty"`
	Shuffle         string              `xml:"shuffleanswers,omitempty"`
	Numbering       string              `xml:"answernumbering,omitempty"`
	UseCase         string              `xml:"usecase,omitempty"`
	ResponseFormat  string              `xml:"responseformat,omitempty"`
	CorrectFeedback *moodleCDATA        `xml:"correctfeedback,omitempty"`
	WrongFeedback   *moodleCDATA        `xml:"incorrectfeedback,omitempty"`
	Answers         []moodleAnswer      `xml:"answer"`
	Subquestions    []moodleSubquestion `xml:"subquestion"`
	Tags            *moodleTags         `xml:"tags,omitempty"`
}

type moodleTags struct {
	Tags []moodleText `xml:"tag"`
}

// MoodleXML renders the set as a Moodle XML quiz. Ordering questions become matching
// questions keyed by position, fill_blank questions become short answer questions.
func MoodleXML(set *question.QuestionSet) ([]byte, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	quiz := moodleQuiz{}
	for i, q := range set.Questions {
		mq, err := moodleFor(i, q)
		if err != nil {
			return nil, err
		}
		quiz.Questions = append(quiz.Questions, mq)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(quiz); err != nil {
		return nil, fmt.Errorf("failed to encode Moodle XML: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func html(text string) moodleCDATA {
	return moodleCDATA{Format: "html", Text: cdata{Value: text}}
}

func optionalHTML(text string) *moodleCDATA {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	h := html(text)
	return &h
}

func moodleFor(i int, q question.Question) (moodleQuestion, error) {
	name := q.Title
	if name == "" {
		name = q.Label(i)
	}
	points := q.Points
	if points <= 0 {
		points = 1
	}
	mq := moodleQuestion{
		Name:         moodleText{Text: name},
		QuestionText: html(q.PromptText),
		DefaultGrade: strconv.FormatFloat(points, 'f', -1, 64),
	}
	if tags := metadataTags(q.Metadata); len(tags) > 0 {
		mq.Tags = &moodleTags{Tags: tags}
	}

	switch q.Kind {
	case question.KindMultipleChoice:
		correct, ok := q.CorrectChoiceIndex()
		if !ok {
			return mq, fmt.Errorf("%s: declared answer %q matches no choice", q.Label(i), q.DeclaredAnswer)
		}
		mq.Type = "multichoice"
		mq.Single, mq.Shuffle, mq.Numbering = "true", "true", "abc"
		mq.CorrectFeedback = optionalHTML(q.FeedbackCorrect)
		mq.WrongFeedback = optionalHTML(q.FeedbackIncorrect)
		for c, choice := range q.Choices {
			fraction := "0"
			if c == correct {
				fraction = "100"
			}
			mq.Answers = append(mq.Answers, moodleAnswer{Fraction: fraction, Format: "html", Text: cdata{Value: choice}})
		}

	case question.KindTrueFalse:
		answer, err := q.BoolAnswer()
		if err != nil {
			return mq, fmt.Errorf("%s: %w", q.Label(i), err)
		}
		mq.Type = "truefalse"
		for _, value := range []bool{true, false} {
			a := moodleAnswer{Fraction: "0", Text: cdata{Value: strconv.FormatBool(value)}}
			if value == answer {
				a.Fraction = "100"
				a.Feedback = optionalHTML(q.FeedbackCorrect)
			} else {
				a.Feedback = optionalHTML(q.FeedbackIncorrect)
			}
			mq.Answers = append(mq.Answers, a)
		}

	case question.KindNumerical:
		value, err := q.NumericAnswer()
		if err != nil {
			return mq, fmt.Errorf("%s: %w", q.Label(i), err)
		}
		mq.Type = "numerical"
		mq.Answers = []moodleAnswer{{
			Fraction:  "100",
			Text:      cdata{Value: strconv.FormatFloat(value, 'g', -1, 64)},
			Tolerance: strconv.FormatFloat(q.Tolerance, 'g', -1, 64),
			Feedback:  optionalHTML(q.FeedbackCorrect),
		}}
		mq.GeneralFeedback = optionalHTML(q.FeedbackIncorrect)

	case question.KindShortAnswer, question.KindFillBlank:
		mq.Type = "shortanswer"
		mq.UseCase = "0"
		mq.Answers = []moodleAnswer{{
			Fraction: "100",
			Format:   "moodle_auto_format",
			Text:     cdata{Value: q.DeclaredAnswer},
			Feedback: optionalHTML(q.FeedbackCorrect),
		}}
		mq.GeneralFeedback = optionalHTML(q.FeedbackIncorrect)

	case question.KindEssay:
		mq.Type = "essay"
		mq.ResponseFormat = "editor"
		mq.GeneralFeedback = optionalHTML(joinFeedback(q))

	case question.KindMatching:
		mq.Type = "matching"
		mq.Shuffle = "true"
		mq.CorrectFeedback = optionalHTML(q.FeedbackCorrect)
		mq.WrongFeedback = optionalHTML(q.FeedbackIncorrect)
		for _, pair := range q.Pairs {
			mq.Subquestions = append(mq.Subquestions, moodleSubquestion{
				Format: "html",
				Text:   cdata{Value: pair.Left},
				Answer: moodleText{Text: pair.Right},
			})
		}

	case question.KindOrdering:
		mq.Type = "matching"
		mq.Shuffle = "true"
		mq.CorrectFeedback = optionalHTML(q.FeedbackCorrect)
		mq.WrongFeedback = optionalHTML(q.FeedbackIncorrect)
		for pos, item := range q.Choices {
			mq.Subquestions = append(mq.Subquestions, moodleSubquestion{
				Format: "html",
				Text:   cdata{Value: item},
				Answer: moodleText{Text: strconv.Itoa(pos + 1)},
			})
		}

	default:
		return mq, fmt.Errorf("%s: type %q cannot be exported", q.Label(i), q.Kind)
	}
	return mq, nil
}

func joinFeedback(q question.Question) string {
	parts := make([]string, 0, 2)
	for _, s := range []string{q.FeedbackCorrect, q.FeedbackIncorrect} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func metadataTags(m question.Metadata) []moodleText {
	var tags []moodleText
	for _, v := range append([]string{m.Topic, m.Subtopic, m.Difficulty}, m.Tags...) {
		if v = strings.TrimSpace(v); v != "" {
			tags = append(tags, moodleText{Text: v})
		}
	}
	return tags
}
