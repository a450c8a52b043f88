package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "tenantguard/pkg/domain-errors"
)

// LimitsSuite tests the limit helpers.
//
// Justification: these guard the gateway's request boundary. "max passes"
// and "max+1 fails" must both hold.
type LimitsSuite struct {
	suite.Suite
}

func TestLimitsSuite(t *testing.T) {
	suite.Run(t, new(LimitsSuite))
}

func (s *LimitsSuite) TestCheckSliceCount() {
	s.NoError(CheckSliceCount("conditions", MaxFilterConditions, MaxFilterConditions))
	s.NoError(CheckSliceCount("conditions", 0, MaxFilterConditions))

	err := CheckSliceCount("conditions", MaxFilterConditions+1, MaxFilterConditions)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "too many conditions")
}

func (s *LimitsSuite) TestCheckStringLength() {
	s.NoError(CheckStringLength("name", strings.Repeat("a", MaxTenantNameLength), MaxTenantNameLength))

	err := CheckStringLength("name", strings.Repeat("a", MaxTenantNameLength+1), MaxTenantNameLength)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *LimitsSuite) TestCheckRange() {
	s.NoError(CheckRange("limit", 0, 0, MaxQueryLimit))
	s.NoError(CheckRange("limit", MaxQueryLimit, 0, MaxQueryLimit))
	s.Error(CheckRange("limit", -1, 0, MaxQueryLimit))
	s.Error(CheckRange("limit", MaxQueryLimit+1, 0, MaxQueryLimit))
}
