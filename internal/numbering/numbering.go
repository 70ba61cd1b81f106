package numbering

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/orderflow/pkg/errors"
)

const defaultMaxAttempts = 10

// Format is a literal prefix followed by a fixed count of ASCII digits.
type Format struct {
	Prefix string
	Digits int
}

var (
	ReturnAuthorization = Format{Prefix: "RA", Digits: 9}
	CustomerReturn      = Format{Prefix: "CR", Digits: 9}
	Reimbursement       = Format{Prefix: "RI", Digits: 9}
	Shipment            = Format{Prefix: "H", Digits: 11}
)

// Pattern matches numbers produced for f.
func (f Format) Pattern() *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`^%s[0-9]{%d}$`, regexp.QuoteMeta(f.Prefix), f.Digits))
}

// DigitSource returns n random ASCII digits.
type DigitSource func(n int) (string, error)

// Generator produces numbers unique within a table's number column.
type Generator struct {
	digits      DigitSource
	maxAttempts int
}

type Option func(*Generator)

func WithDigitSource(src DigitSource) Option {
	return func(g *Generator) {
		if src != nil {
			g.digits = src
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{digits: randomDigits, maxAttempts: defaultMaxAttempts}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate draws candidates until one is absent from model's table. The
// existence check runs on tx so it shares the creating transaction; the unique
// index on the column remains the final arbiter.
func (g *Generator) Generate(ctx context.Context, tx *gorm.DB, format Format, model any) (string, error) {
	if tx == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		digits, err := g.digits(format.Digits)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate number")
		}
		candidate := format.Prefix + digits

		var count int64
		if err := tx.WithContext(ctx).Model(model).Where("number = ?", candidate).Count(&count).Error; err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check number uniqueness")
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("could not generate a unique %s number after %d attempts", format.Prefix, g.maxAttempts))
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
