package retrieval

import (
	"fmt"
	"maps"
	"math"
	"strings"
	"time"

	"github.com/Aman-CERP/crmrag/internal/analyze"
	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/errors"
)

// Default tuning values.
const (
	// DefaultRRFConstant is the standard RRF smoothing parameter.
	DefaultRRFConstant = 60

	DefaultPoolMultiplier = 3
	DefaultMaxPoolSize    = 150

	DefaultSpecificK    = 10
	DefaultEnumerationK = 20

	DefaultTypeFractionSpecific    = 0.30
	DefaultTypeFractionEnumeration = 0.50

	DefaultNonInformativeCap = 0.25

	DefaultAlpha           = 0.7
	DefaultDiversityWeight = 0.2

	DefaultMegaEntityThreshold = 2000
	DefaultMegaEntityPenalty   = 0.15
	DefaultCategoryBoost       = 0.10

	DefaultPredicateWeight = 0.5

	DefaultContextTurns   = 2
	DefaultVagueMaxTokens = 10
)

// Config holds every tuning constant of the pipeline. It is copied into the
// engine at construction and never changed afterwards.
type Config struct {
	RRFConstant int

	// PoolMultiplier and MaxPoolSize bound the candidate pool to
	// min(k*PoolMultiplier, MaxPoolSize).
	PoolMultiplier int
	MaxPoolSize    int

	// SpecificK and EnumerationK are the default k per query type;
	// aggregation questions use EnumerationK.
	SpecificK    int
	EnumerationK int

	// Fractions of the pool reserved for type-channel candidates.
	TypeFractionSpecific    float64
	TypeFractionEnumeration float64

	// NonInformativeCap is the largest pool share Appellation and Type
	// documents may hold.
	NonInformativeCap float64

	Alpha           float64
	DiversityWeight float64

	// CategoryModifiers is added to the selection score per category.
	CategoryModifiers map[corpus.Category]float64

	MegaEntityThreshold int
	MegaEntityPenalty   float64

	// CategoryBoost is added for target-category documents when
	// CategoryBoostEnabled is set.
	CategoryBoost        float64
	CategoryBoostEnabled bool

	DefaultPredicateWeight float64
	// PredicateWeights overrides the built-in table, keyed by property code
	// ("P89") or full property name.
	PredicateWeights map[string]float64

	// ContextTurns is how many prior turns prefix a follow-up question.
	ContextTurns   int
	VagueMaxTokens int

	// ConnectivityDecay shrinks the connectivity weight geometrically with
	// each round. Zero disables it.
	ConnectivityDecay float64
	// ConnectivityMinRelevance zeroes connectivity for candidates whose
	// relevance is below it. Zero disables it.
	ConnectivityMinRelevance float64

	// ChannelTimeout bounds each dense or lexical search. Zero means the
	// caller's context alone.
	ChannelTimeout time.Duration
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		RRFConstant:             DefaultRRFConstant,
		PoolMultiplier:          DefaultPoolMultiplier,
		MaxPoolSize:             DefaultMaxPoolSize,
		SpecificK:               DefaultSpecificK,
		EnumerationK:            DefaultEnumerationK,
		TypeFractionSpecific:    DefaultTypeFractionSpecific,
		TypeFractionEnumeration: DefaultTypeFractionEnumeration,
		NonInformativeCap:       DefaultNonInformativeCap,
		Alpha:                   DefaultAlpha,
		DiversityWeight:         DefaultDiversityWeight,
		CategoryModifiers: map[corpus.Category]float64{
			corpus.CategoryAppellation: -0.10,
			corpus.CategoryType:        -0.05,
		},
		MegaEntityThreshold:    DefaultMegaEntityThreshold,
		MegaEntityPenalty:      DefaultMegaEntityPenalty,
		CategoryBoost:          DefaultCategoryBoost,
		DefaultPredicateWeight: DefaultPredicateWeight,
		ContextTurns:           DefaultContextTurns,
		VagueMaxTokens:         DefaultVagueMaxTokens,
		ChannelTimeout:         10 * time.Second,
	}
}

// Validate checks ranges. It returns ERR_102_CONFIG_INVALID listing every
// problem found.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}
	unit := func(v float64) bool { return v >= 0 && v <= 1 && !math.IsNaN(v) }

	check(c.RRFConstant > 0, "rrf_constant must be positive, got %d", c.RRFConstant)
	check(c.PoolMultiplier >= 1, "pool_multiplier must be at least 1, got %d", c.PoolMultiplier)
	check(c.MaxPoolSize >= 1, "max_pool_size must be at least 1, got %d", c.MaxPoolSize)
	check(c.SpecificK >= 1, "specific_k must be at least 1, got %d", c.SpecificK)
	check(c.EnumerationK >= 1, "enumeration_k must be at least 1, got %d", c.EnumerationK)
	check(unit(c.TypeFractionSpecific), "type_fraction_specific must be in [0,1], got %v", c.TypeFractionSpecific)
	check(unit(c.TypeFractionEnumeration), "type_fraction_enumeration must be in [0,1], got %v", c.TypeFractionEnumeration)
	check(unit(c.NonInformativeCap), "non_informative_cap must be in [0,1], got %v", c.NonInformativeCap)
	check(unit(c.Alpha), "alpha must be in [0,1], got %v", c.Alpha)
	check(c.DiversityWeight >= 0, "diversity_weight must not be negative, got %v", c.DiversityWeight)
	check(c.MegaEntityThreshold >= 0, "mega_entity_threshold must not be negative, got %d", c.MegaEntityThreshold)
	check(c.MegaEntityPenalty >= 0, "mega_entity_penalty must not be negative, got %v", c.MegaEntityPenalty)
	check(unit(c.DefaultPredicateWeight), "default_predicate_weight must be in [0,1], got %v", c.DefaultPredicateWeight)
	for name, w := range c.PredicateWeights {
		check(unit(w), "predicate weight %s must be in [0,1], got %v", name, w)
	}
	for cat := range c.CategoryModifiers {
		check(cat.Valid(), "unknown category %d in category modifiers", cat)
	}
	check(c.ContextTurns >= 0, "context_turns must not be negative, got %d", c.ContextTurns)
	check(c.VagueMaxTokens >= 0, "vague_max_tokens must not be negative, got %d", c.VagueMaxTokens)
	check(c.ConnectivityDecay >= 0 && c.ConnectivityDecay < 1, "connectivity_decay must be in [0,1), got %v", c.ConnectivityDecay)
	check(unit(c.ConnectivityMinRelevance), "connectivity_min_relevance must be in [0,1], got %v", c.ConnectivityMinRelevance)
	check(c.ChannelTimeout >= 0, "channel_timeout must not be negative, got %s", c.ChannelTimeout)

	if len(problems) > 0 {
		return errors.ConfigError("invalid retrieval config: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

// clone deep-copies the maps so callers cannot mutate a running engine.
func (c Config) clone() Config {
	c.CategoryModifiers = maps.Clone(c.CategoryModifiers)
	c.PredicateWeights = maps.Clone(c.PredicateWeights)
	return c
}

// KFor returns the default number of documents for a query type.
func (c Config) KFor(t analyze.QueryType) int {
	if t == analyze.Specific {
		return c.SpecificK
	}
	return c.EnumerationK
}

// PoolSize returns the candidate pool size for k.
func (c Config) PoolSize(k int) int {
	if k <= 0 {
		return 0
	}
	return min(k*c.PoolMultiplier, c.MaxPoolSize)
}

// TypeFraction returns the share of the pool reserved for the type channel.
func (c Config) TypeFraction(t analyze.QueryType) float64 {
	if t == analyze.Specific {
		return c.TypeFractionSpecific
	}
	return c.TypeFractionEnumeration
}

// ReservedSlots returns how many pool slots the type channel is guaranteed.
func (c Config) ReservedSlots(t analyze.QueryType, poolSize int) int {
	if poolSize <= 0 {
		return 0
	}
	return min(int(math.Ceil(c.TypeFraction(t)*float64(poolSize))), poolSize)
}

// categoryModifier returns the selection adjustment for cat.
func (c Config) categoryModifier(cat corpus.Category) float64 {
	return c.CategoryModifiers[cat]
}
