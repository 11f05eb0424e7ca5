package habitservice

import (
	"errors"
	"fmt"
	"math"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/loopgrid/internal/apperr"
	"github.com/starford/loopgrid/internal/models"
	"github.com/starford/loopgrid/internal/retention"
)

// HabitInput holds the fields accepted when creating a habit.
type HabitInput struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Question    string           `json:"question"`
	Color       int64            `json:"color"`
	Type        models.HabitType `json:"type"`
	TargetValue float64          `json:"targetValue"`
	Unit        string           `json:"unit"`
	FreqNum     int              `json:"freqNum"`
	FreqDen     int              `json:"freqDen"`
}

// Validate validates the habit input.
func (in HabitInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Type, validation.In(models.HabitBoolean, models.HabitNumeric)),
		validation.Field(&in.TargetValue, validation.By(finite), validation.Min(0.0), validation.Max(retention.MaxAmount)),
		validation.Field(&in.FreqNum, validation.Min(0)),
		validation.Field(&in.FreqDen, validation.Min(0)),
	)
}

func (in HabitInput) habit() models.Habit {
	return models.Habit{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		Question:    strings.TrimSpace(in.Question),
		Color:       in.Color,
		Type:        in.Type,
		TargetValue: in.TargetValue,
		Unit:        strings.TrimSpace(in.Unit),
		FreqNum:     in.FreqNum,
		FreqDen:     in.FreqDen,
	}
}

// HabitPatch is a partial habit update; nil fields are left unchanged.
type HabitPatch struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Question    *string           `json:"question,omitempty"`
	Color       *int64            `json:"color,omitempty"`
	Archived    *bool             `json:"archived,omitempty"`
	Type        *models.HabitType `json:"type,omitempty"`
	TargetValue *float64          `json:"targetValue,omitempty"`
	Unit        *string           `json:"unit,omitempty"`
}

// Validate validates the patch.
func (p HabitPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&p.Type, validation.In(models.HabitBoolean, models.HabitNumeric)),
		validation.Field(&p.TargetValue, validation.By(finite), validation.Min(0.0), validation.Max(retention.MaxAmount)),
	)
}

func (p HabitPatch) apply(h *models.Habit) {
	if p.Name != nil {
		h.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		h.Description = strings.TrimSpace(*p.Description)
	}
	if p.Question != nil {
		h.Question = strings.TrimSpace(*p.Question)
	}
	if p.Color != nil {
		h.Color = *p.Color
	}
	if p.Archived != nil {
		h.Archived = *p.Archived
	}
	if p.Type != nil {
		h.Type = *p.Type
	}
	if p.TargetValue != nil {
		h.TargetValue = *p.TargetValue
	}
	if p.Unit != nil {
		h.Unit = strings.TrimSpace(*p.Unit)
	}
}

func finite(v any) error {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case *float64:
		if x == nil {
			return nil
		}
		f = *x
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("must be a finite number")
	}
	return nil
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
}
