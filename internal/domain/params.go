package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultModel               = "u2net"
	DefaultAlphaMatting        = true
	DefaultForegroundThreshold = 240
	DefaultBackgroundThreshold = 10
	DefaultErodeSize           = 10

	MaxErodeSize = 100
)

// Params are the tunables forwarded to the inference backend for one removal.
// Model is not checked here: an unusable id fails when its session is built.
type Params struct {
	Model               string `json:"model"`
	AlphaMatting        bool   `json:"alpha_matting"`
	ForegroundThreshold int    `json:"alpha_matting_foreground_threshold" validate:"min=0,max=255"`
	BackgroundThreshold int    `json:"alpha_matting_background_threshold" validate:"min=0,max=255"`
	ErodeSize           int    `json:"alpha_matting_erode_size" validate:"min=1,max=100"`
}

func DefaultParams() Params {
	return Params{
		Model:               DefaultModel,
		AlphaMatting:        DefaultAlphaMatting,
		ForegroundThreshold: DefaultForegroundThreshold,
		BackgroundThreshold: DefaultBackgroundThreshold,
		ErodeSize:           DefaultErodeSize,
	}
}

// Clamp forces thresholds into [0,255] and the erode size to at least 1.
// Out-of-range values are corrected, never rejected.
func (p Params) Clamp() Params {
	p.ForegroundThreshold = clamp(p.ForegroundThreshold, 0, 255)
	p.BackgroundThreshold = clamp(p.BackgroundThreshold, 0, 255)
	if p.ErodeSize < 1 {
		p.ErodeSize = 1
	}
	return p
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate is the boundary check used by entry points before a removal runs.
func (p Params) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	name := fieldNames[fe.Field()]
	if name == "" {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be >= %s, got %v", name, fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must be <= %s, got %v", name, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}

var fieldNames = map[string]string{
	"ForegroundThreshold": "alpha_matting_foreground_threshold",
	"BackgroundThreshold": "alpha_matting_background_threshold",
	"ErodeSize":           "alpha_matting_erode_size",
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
