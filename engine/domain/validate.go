package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const (
	maxIDLength   = 64
	maxGeneration = 1000
)

// ValidateMember checks a normalized member before it is written to the
// repository. The kinship engine itself tolerates everything rejected here.
func ValidateMember(m Member) error {
	if m.ID == "" {
		return NewValidationError("id", "", ErrMissingID)
	}
	if err := validateID("id", m.ID); err != nil {
		return err
	}
	for field, ref := range map[string]string{
		"father_id": m.FatherID,
		"mother_id": m.MotherID,
		"spouse_id": m.SpouseID,
	} {
		if ref == "" {
			continue
		}
		if ref == m.ID {
			return NewValidationError(field, ref, ErrSelfReference)
		}
		if err := validateID(field, ref); err != nil {
			return err
		}
	}
	for _, c := range m.ChildrenIDs {
		if c == m.ID {
			return NewValidationError("children_ids", c, ErrSelfReference)
		}
		if err := validateID("children_ids", c); err != nil {
			return err
		}
	}
	if m.Generation != nil && (*m.Generation < 0 || *m.Generation > maxGeneration) {
		return NewValidationError("generation", strconv.Itoa(*m.Generation), ErrInvalidGeneration)
	}
	switch m.Gender {
	case GenderUnknown, GenderMale, GenderFemale:
	default:
		return NewValidationError("gender", string(m.Gender), ErrInvalidGender)
	}
	return nil
}

// ValidateMembers validates a batch and joins every failure, each prefixed
// with its position in the batch.
func ValidateMembers(members []Member) error {
	var errs []error
	for i, m := range members {
		if err := ValidateMember(m); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func validateID(field, id string) error {
	if len(id) > maxIDLength {
		return NewValidationError(field, id, ErrInvalidID)
	}
	if strings.IndexFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return NewValidationError(field, id, ErrInvalidID)
	}
	return nil
}
