package models

import (
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "beacon/pkg/domain-errors"
)

type KeySuite struct {
	suite.Suite
}

func TestKeySuite(t *testing.T) {
	suite.Run(t, new(KeySuite))
}

func (s *KeySuite) TestNewKey() {
	s.Run("trims both ids", func() {
		k, err := NewKey(" practice-1 ", "patient-1\n")
		s.Require().NoError(err)
		s.Equal(Key{Practice: "practice-1", Patient: "patient-1"}, k)
	})

	s.Run("missing ids are rejected", func() {
		_, err := NewKey("", "patient-1")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = NewKey("practice-1", "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("separator in an id is rejected", func() {
		// "a:b"+"c" and "a"+"b:c" would share one storage key
		_, err := NewKey("a:b", "c")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = NewKey("a", "b:c")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
