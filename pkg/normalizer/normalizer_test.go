package normalizer

import (
	"regexp"
	"testing"

	"github.com/RitoIssei/bot-mng-ns/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNormalizer() *Normalizer {
	return New(config.Contract{
		Ignored:         []string{"abcvip12", "XK900"},
		Families:        []string{"F"},
		CanonicalLength: 5,
		Protected:       []string{"A10", "9", "11", "1"},
	})
}

func TestNormalizer_NormalizeContractCode(t *testing.T) {
	n := testNormalizer()

	t.Run("should never truncate an ignored code", func(t *testing.T) {
		// when
		result := n.NormalizeContractCode(" abcvip12 ")

		// then
		assert.Equal(t, "ABCVIP12", result)
		assert.Equal(t, "XK900", n.NormalizeContractCode("xk900"))
	})

	t.Run("should strip trailing digits from family codes", func(t *testing.T) {
		assert.Equal(t, "FD3N", n.NormalizeContractCode("fd3n11"))
		assert.Equal(t, "FX", n.NormalizeContractCode("FX200"))
	})

	t.Run("should truncate other codes to the canonical length", func(t *testing.T) {
		assert.Equal(t, "ABCDE", n.NormalizeContractCode("abcdefgh"))
		assert.Equal(t, "AB1", n.NormalizeContractCode("ab1"))
	})

	t.Run("should leave empty input empty", func(t *testing.T) {
		assert.Equal(t, "", n.NormalizeContractCode("   "))
	})
}

func TestNormalizer_RefundContractCode(t *testing.T) {
	n := testNormalizer()

	tests := []struct {
		in   string
		want string
	}{
		{"fd3na10", "FD3NA10"},
		{"FD3N9", "FD3N9"},
		{"FD3N11", "FD3N11"},
		{"FD3N21", "FD3N21"},
		{"FD3N2", "FD3N"},
		{"FD3N", "FD3N"},
		{"XY123456", "XY123456"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, n.RefundContractCode(tt.in))
		})
	}
}

func TestNormalizeMoney(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"plain digits", "300000", 300000},
		{"thousand separators", "1.500.000đ", 1500000},
		{"leading sign kept", "-2,000", -2000},
		{"inner minus dropped", "12-34", 1234},
		{"sign after text", "abc-123", -123},
		{"repeated sign", "--5", -5},
		{"empty", "", 0},
		{"no digits", "abc", 0},
		{"sign only", "-", 0},
		{"overflow", "99999999999999999999999", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMoney(tt.in))
		})
	}
}

func TestSplitCodes(t *testing.T) {
	t.Run("should split, clean and upper-case codes", func(t *testing.T) {
		// when
		codes := SplitCodes(" fd3n1, FX2 ,, ab-c9 ")

		// then
		assert.Equal(t, []string{"FD3N1", "FX2", "ABC9"}, codes)
	})

	t.Run("should fold full-width characters", func(t *testing.T) {
		assert.Equal(t, []string{"FD3N"}, SplitCodes("ＦＤ３Ｎ"))
	})

	t.Run("should return nothing for empty text", func(t *testing.T) {
		assert.Empty(t, SplitCodes(" , "))
	})
}

func TestTeam(t *testing.T) {
	assert.Equal(t, "TO DO", Team(" Tổ Đỏ "))
	assert.Equal(t, "ALPHA", Team("alpha"))
	assert.Equal(t, DefaultTeam, Team("  "))
}

func TestBatchCode(t *testing.T) {
	pattern := regexp.MustCompile(`^ALPHA-[A-Z0-9]{8}$`)
	digit := regexp.MustCompile(`[0-9]`)

	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := BatchCode("alpha")
		require.NoError(t, err)

		assert.Regexp(t, pattern, code)
		assert.Regexp(t, digit, code[len("ALPHA-"):])
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, 200)
}

func TestHasTrailingDigit(t *testing.T) {
	assert.True(t, HasTrailingDigit("FD3N1"))
	assert.False(t, HasTrailingDigit("FD3N"))
	assert.False(t, HasTrailingDigit(""))
}
