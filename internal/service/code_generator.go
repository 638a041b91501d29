package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/therapii/api-server-go/internal/config"
	"github.com/therapii/api-server-go/internal/util"
)

const (
	minInvitationCode = 10000
	maxInvitationCode = 99999
)

// ErrCodeSpaceExhausted means every draw collided with a redeemable invitation.
var ErrCodeSpaceExhausted = errors.New("invitation code space exhausted")

// codeChecker locks a candidate code and reports whether a redeemable
// invitation holds it.
type codeChecker interface {
	LockCode(ctx context.Context, code string) error
	ExistsRedeemableByCode(ctx context.Context, code string, now time.Time) (bool, error)
}

type CodeGenerator struct {
	store       codeChecker
	maxAttempts int
	draw        func() (string, error)
	now         func() time.Time
}

func NewCodeGenerator(store codeChecker) *CodeGenerator {
	return &CodeGenerator{
		store:       store,
		maxAttempts: config.MaxCodeAttempts,
		draw:        Generate,
		now:         time.Now,
	}
}

// Generate draws a uniformly random five digit code from crypto/rand.
func Generate() (string, error) {
	n, err := util.RandomInt(minInvitationCode, maxInvitationCode)
	if err != nil {
		return "", fmt.Errorf("draw invitation code: %w", err)
	}
	return strconv.FormatInt(n, 10), nil
}

// using returns a copy of g that checks codes against store.
func (g *CodeGenerator) using(store codeChecker) *CodeGenerator {
	c := *g
	c.store = store
	return &c
}

// EnsureUnique returns a code not held by any currently redeemable invitation.
// Each candidate is locked first, so when run inside a transaction no other
// creator can take the returned code before the insert commits.
func (g *CodeGenerator) EnsureUnique(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		code, err := g.draw()
		if err != nil {
			return "", err
		}

		if err := g.store.LockCode(ctx, code); err != nil {
			return "", fmt.Errorf("lock invitation code: %w", err)
		}
		exists, err := g.store.ExistsRedeemableByCode(ctx, code, g.now())
		if err != nil {
			return "", fmt.Errorf("check code uniqueness: %w", err)
		}
		if !exists {
			if attempt > 1 {
				log.Debug().Int("attempts", attempt).Msg("invitation code collision resolved")
			}
			return code, nil
		}
	}

	log.Error().Int("attempts", g.maxAttempts).Msg("no free invitation code found")
	return "", ErrCodeSpaceExhausted
}
