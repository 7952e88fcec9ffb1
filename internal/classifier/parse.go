package classifier

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"studyhub/internal/model"
)

// ErrMalformed means the model answered but not with one conforming JSON object.
var ErrMalformed = errors.New("malformed classifier output")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		if s, ok := fl.Field().Interface().(string); ok {
			return strings.TrimSpace(s) != ""
		}
		return false
	})
	return v
}

// extractObject strips an optional markdown fence and requires exactly one
// JSON object.
func extractObject(raw string) ([]byte, error) {
	s := stripFences(strings.TrimSpace(raw))

	dec := json.NewDecoder(strings.NewReader(s))
	var obj json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(obj), []byte("{")) {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrMalformed)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing content after object", ErrMalformed)
	}
	return obj, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return s
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func parseProposal(raw string) (model.ActionProposal, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return model.ActionProposal{}, err
	}

	var p model.ActionProposal
	if err := json.Unmarshal(obj, &p); err != nil {
		return model.ActionProposal{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i, d := range p.SessionDrafts {
		if err := validate.Struct(d); err != nil {
			return model.ActionProposal{}, fmt.Errorf("%w: sessionDrafts[%d]: %v", ErrMalformed, i, err)
		}
	}
	for i, d := range p.MilestoneDrafts {
		if err := validate.Struct(d); err != nil {
			return model.ActionProposal{}, fmt.Errorf("%w: milestoneDrafts[%d]: %v", ErrMalformed, i, err)
		}
	}
	// confirmed is owned by the materializer, never by the model
	p.Confirmed = false
	return p, nil
}

func parseGrade(raw string) (model.GradeResult, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return model.GradeResult{}, err
	}

	var wire struct {
		Review *string `json:"review"`
		Score  *int    `json:"score"`
		Pass   *bool   `json:"pass"`
	}
	if err := json.Unmarshal(obj, &wire); err != nil {
		return model.GradeResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Review == nil || wire.Score == nil || wire.Pass == nil {
		return model.GradeResult{}, fmt.Errorf("%w: review, score and pass are required", ErrMalformed)
	}

	g := model.GradeResult{Review: strings.TrimSpace(*wire.Review), Score: *wire.Score, Pass: *wire.Pass}
	if err := validate.Struct(g); err != nil {
		return model.GradeResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return g, nil
}
