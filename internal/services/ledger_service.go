package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"bilancio/internal/balance"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/kv"
	"bilancio/internal/log"
	"bilancio/internal/profile"
	"bilancio/internal/records"
	"bilancio/internal/report"
)

var ErrInvalidPeriod = errors.New("invalid period")

// maxEditAttempts bounds how often EditPeriod retries after a version conflict.
const maxEditAttempts = 5

// PeriodPublisher announces stored periods to other processes.
type PeriodPublisher interface {
	PublishPeriodChanged(ctx context.Context, user, profile string, year, month int) error
}

// PeriodBalances is the balance view of one stored period. Partners is set
// for two-party profiles, in which case Balances holds the joint view.
type PeriodBalances struct {
	Record     core.PeriodRecord
	Balances   core.Balances
	Partners   *balance.PartnerBalances
	Unabsorbed float64
}

// LedgerService orchestrates period storage, balance computation and reports.
type LedgerService struct {
	store     kv.Store
	publisher PeriodPublisher
	reports   cache.Cache[map[int]core.Report]
	flight    singleflight.Group
	// gens counts saves per report key; a build only caches its result when
	// no save happened while it ran. Guarded by genMu together with reports.
	genMu     sync.Mutex
	gens      map[string]uint64
	logger    *log.Logger
	events    *log.StructuredLogger
}

// NewLedgerService wires the service. publisher and reports may be nil.
func NewLedgerService(store kv.Store, publisher PeriodPublisher, reports cache.Cache[map[int]core.Report], logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentLedger)
	return &LedgerService{
		store:     store,
		publisher: publisher,
		reports:   reports,
		gens:      make(map[string]uint64),
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
	}
}

// SavePeriod normalizes and stores a period record, replacing whatever was
// stored. It then invalidates the cached report and announces the change.
// A failed publish is only logged.
func (s *LedgerService) SavePeriod(ctx context.Context, user string, p profile.Profile, year, month int, rec core.PeriodRecord) (core.PeriodRecord, error) {
	if err := validatePeriod(user, year, month); err != nil {
		return core.PeriodRecord{}, err
	}

	rec, blob, err := prepare(p, year, month, rec)
	if err != nil {
		return core.PeriodRecord{}, err
	}
	if err := s.store.Set(ctx, user, rec.Key, blob); err != nil {
		return core.PeriodRecord{}, fmt.Errorf("store period: %w", err)
	}

	s.saved(ctx, user, p, rec)
	return rec, nil
}

// EditPeriod applies edit to the stored period and writes the result only if
// nobody else saved the period in between. On a conflict the edit is re-run
// on the fresh record, up to maxEditAttempts times.
func (s *LedgerService) EditPeriod(ctx context.Context, user string, p profile.Profile, year, month int, edit func(core.PeriodRecord) (core.PeriodRecord, error)) (core.PeriodRecord, error) {
	if err := validatePeriod(user, year, month); err != nil {
		return core.PeriodRecord{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxEditAttempts; attempt++ {
		current, version, err := s.load(ctx, user, p, year, month)
		if err != nil {
			return core.PeriodRecord{}, err
		}
		edited, err := edit(current)
		if err != nil {
			return core.PeriodRecord{}, err
		}
		rec, blob, err := prepare(p, year, month, edited)
		if err != nil {
			return core.PeriodRecord{}, err
		}

		_, err = s.store.SetIfVersion(ctx, user, rec.Key, blob, version)
		if errors.Is(err, kv.ErrConflict) {
			lastErr = err
			s.logger.DebugContext(ctx, "Period changed during edit, retrying",
				log.FieldUser, user,
				log.FieldKey, rec.Key,
				"attempt", attempt)
			continue
		}
		if err != nil {
			return core.PeriodRecord{}, fmt.Errorf("store period: %w", err)
		}

		s.saved(ctx, user, p, rec)
		return rec, nil
	}
	return core.PeriodRecord{}, fmt.Errorf("edit period after %d attempts: %w", maxEditAttempts, lastErr)
}

// saved runs the bookkeeping shared by every successful write.
func (s *LedgerService) saved(ctx context.Context, user string, p profile.Profile, rec core.PeriodRecord) {
	s.invalidate(reportKey(user, p))
	s.events.LogPeriodSaved(ctx, user, p.Name.String(), rec.Year, rec.Month, rec.Key)

	if s.publisher != nil {
		if err := s.publisher.PublishPeriodChanged(ctx, user, p.Name.String(), rec.Year, rec.Month); err != nil {
			s.events.LogError(ctx, "Failed to publish period change", err, log.OpPublish,
				log.NewFields().WithPeriod(user, p.Name.String(), rec.Year, rec.Month))
		}
	}
}

// Period returns the stored record, or an empty template when none exists.
func (s *LedgerService) Period(ctx context.Context, user string, p profile.Profile, year, month int) (core.PeriodRecord, error) {
	if err := validatePeriod(user, year, month); err != nil {
		return core.PeriodRecord{}, err
	}
	rec, _, err := s.load(ctx, user, p, year, month)
	return rec, err
}

// load reads a period with its storage version; a missing period is the
// profile template at version 0.
func (s *LedgerService) load(ctx context.Context, user string, p profile.Profile, year, month int) (core.PeriodRecord, int64, error) {
	key := records.Key(p.Family, year, month)
	blob, version, err := s.store.GetVersioned(ctx, user, key)
	if errors.Is(err, kv.ErrNotFound) {
		rec := p.Template(year, month)
		rec.Key = key
		return rec, 0, nil
	}
	if err != nil {
		return core.PeriodRecord{}, 0, fmt.Errorf("read period: %w", err)
	}

	rec, err := records.Decode(key, blob)
	if err != nil {
		return core.PeriodRecord{}, 0, err
	}
	return p.Normalize(rec), version, nil
}

// Balances computes the waterfall for a stored period.
func (s *LedgerService) Balances(ctx context.Context, user string, p profile.Profile, year, month int) (PeriodBalances, error) {
	rec, err := s.Period(ctx, user, p, year, month)
	if err != nil {
		return PeriodBalances{}, err
	}

	out := PeriodBalances{Record: rec}
	if p.IsPartnered() {
		first, second := p.Split(rec)
		pb := balance.ComputePartners(first, second, p.JointOrder)
		out.Partners = &pb
		out.Balances = pb.Joint
		out.Unabsorbed = balance.Unabsorbed(balance.JointSources(first, second, p.JointOrder), pb.Joint)
		return out, nil
	}

	out.Balances = balance.Compute(rec.Sources, rec.LineItemsByBucket)
	out.Unabsorbed = balance.Unabsorbed(rec.Sources, out.Balances)
	return out, nil
}

// Report builds the yearly reports of a profile. Results are cached until the
// next save for the same user and profile; concurrent misses share one build.
func (s *LedgerService) Report(ctx context.Context, user string, p profile.Profile) (map[int]core.Report, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: user is required", ErrInvalidPeriod)
	}

	key := reportKey(user, p)
	if s.reports != nil {
		if reports, ok := s.reports.Get(key); ok {
			s.events.LogReportBuilt(ctx, user, p.Name.String(), 0, len(reports), true)
			return reports, nil
		}
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		gen := s.generation(key)
		blobs, err := s.store.ListByPrefix(ctx, user, records.Prefix(p.Family))
		if err != nil {
			return nil, fmt.Errorf("list periods: %w", err)
		}
		recs := records.Collect(p.Family, blobs, s.logger.Logger)
		for i := range recs {
			recs[i] = p.Normalize(recs[i])
		}
		reports, err := report.Build(recs)
		if err != nil {
			return nil, err
		}
		s.cacheReports(key, gen, reports)
		s.events.LogReportBuilt(ctx, user, p.Name.String(), len(recs), len(reports), false)
		return reports, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[int]core.Report), nil
}

func (s *LedgerService) generation(key string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[key]
}

// cacheReports caches a build unless a save bumped the key's generation
// after the build started.
func (s *LedgerService) cacheReports(key string, gen uint64, reports map[int]core.Report) {
	if s.reports == nil {
		return
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.gens[key] == gen {
		s.reports.Set(key, reports)
	}
}

// invalidate drops the cached report and detaches callers from any build
// that started before the save.
func (s *LedgerService) invalidate(key string) {
	s.genMu.Lock()
	s.gens[key]++
	if s.reports != nil {
		s.reports.Delete(key)
	}
	s.genMu.Unlock()
	s.flight.Forget(key)
}

// Ping reports storage health when the store supports it.
func (s *LedgerService) Ping(ctx context.Context) error {
	if pinger, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func validatePeriod(user string, year, month int) error {
	if user == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidPeriod)
	}
	if year < 1 || month < 1 || month > 12 {
		return fmt.Errorf("%w: %d-%02d", ErrInvalidPeriod, year, month)
	}
	return nil
}

// prepare normalizes rec for the period and encodes it.
func prepare(p profile.Profile, year, month int, rec core.PeriodRecord) (core.PeriodRecord, []byte, error) {
	rec = p.Normalize(rec)
	rec.Key = records.Key(p.Family, year, month)
	rec.Year = year
	rec.Month = month

	blob, err := records.Encode(rec)
	if err != nil {
		return core.PeriodRecord{}, nil, fmt.Errorf("encode period: %w", err)
	}
	return rec, blob, nil
}

func reportKey(user string, p profile.Profile) string {
	return user + "|" + p.Family
}
