package validation

import (
	"errors"
	"strings"
	"testing"

	dErrors "credtrust/pkg/domain-errors"

	"github.com/stretchr/testify/suite"
)

// LimitsSuite checks the boundary: max passes, max+1 fails.
type LimitsSuite struct {
	suite.Suite
}

func TestLimitsSuite(t *testing.T) {
	suite.Run(t, new(LimitsSuite))
}

func (s *LimitsSuite) TestCheckSliceCount() {
	s.Run("passes when count equals max", func() {
		s.NoError(CheckSliceCount("fields", MaxDisclosedFields, MaxDisclosedFields))
	})

	s.Run("passes when count is zero", func() {
		s.NoError(CheckSliceCount("fields", 0, MaxDisclosedFields))
	})

	s.Run("fails when count exceeds max", func() {
		err := CheckSliceCount("predicates", MaxPredicates+1, MaxPredicates)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "too many predicates")
		s.Contains(err.Error(), "max 50 allowed")
	})
}

func (s *LimitsSuite) TestCheckStringLength() {
	s.Run("passes when length equals max", func() {
		s.NoError(CheckStringLength("reason", strings.Repeat("a", MaxReasonLength), MaxReasonLength))
	})

	s.Run("passes for empty string", func() {
		s.NoError(CheckStringLength("reason", "", MaxReasonLength))
	})

	s.Run("fails when length exceeds max", func() {
		err := CheckStringLength("reason", strings.Repeat("a", MaxReasonLength+1), MaxReasonLength)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "reason exceeds max length of 500")
	})
}

func (s *LimitsSuite) TestCheckEachStringLength() {
	s.Run("passes for nil slice", func() {
		s.NoError(CheckEachStringLength("field path", nil, MaxFieldPathLength))
	})

	s.Run("fails when any element exceeds max", func() {
		values := []string{"gpa", strings.Repeat("a", MaxFieldPathLength+1), "degree.type"}
		err := CheckEachStringLength("field path", values, MaxFieldPathLength)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "field path exceeds max length of 256")
	})
}

func (s *LimitsSuite) TestFirstError() {
	first := errors.New("first")
	s.NoError(FirstError(nil, nil))
	s.Equal(first, FirstError(nil, first, errors.New("second")))
}
