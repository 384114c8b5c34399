package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/kv"
	"bilancio/internal/log"
	"bilancio/internal/profile"
	"bilancio/internal/services"
	"bilancio/internal/sheets"
)

// exportConcurrency bounds parallel sheet writes during a full export.
const exportConcurrency = 4

// ExportWorker writes yearly reports to a spreadsheet whenever a period changes.
type ExportWorker struct {
	ledger *services.LedgerService
	users  kv.UserLister
	writer sheets.ReportWriter
	logger *log.Logger
}

// NewExportWorker builds a worker. A nil writer turns every export into a log line.
func NewExportWorker(ledger *services.LedgerService, users kv.UserLister, writer sheets.ReportWriter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExportWorker{
		ledger: ledger,
		users:  users,
		writer: writer,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandlePeriodChanged rebuilds the changed profile's report and exports the
// affected year.
func (w *ExportWorker) HandlePeriodChanged(ctx context.Context, msg *amqp.PeriodChangedMessage) error {
	p, err := profile.Lookup(msg.Profile)
	if err != nil {
		// Unknown profiles are acked and dropped.
		w.logger.WarnContext(ctx, "Dropping change for unknown profile", log.FieldProfile, msg.Profile)
		return nil
	}

	reports, err := w.ledger.Report(ctx, msg.User, p)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	rep, ok := reports[msg.Year]
	if !ok {
		rep = core.Report{Year: msg.Year}
	}
	return w.export(ctx, msg.User, p, rep)
}

// ExportAll exports every year of every profile of every stored user. It is
// run once at startup to catch changes missed while the worker was down.
func (w *ExportWorker) ExportAll(ctx context.Context) error {
	if w.users == nil {
		w.logger.InfoContext(ctx, "Storage cannot enumerate users, skipping full export")
		return nil
	}
	users, err := w.users.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var exported atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)

	for _, user := range users {
		for _, p := range profile.All() {
			reports, err := w.ledger.Report(gctx, user, p)
			if err != nil {
				_ = g.Wait()
				return fmt.Errorf("build report for %s/%s: %w", user, p.Name, err)
			}
			for _, year := range core.SortedYears(reports) {
				rep := reports[year]
				g.Go(func() error {
					if err := w.export(gctx, user, p, rep); err != nil {
						return err
					}
					exported.Add(1)
					return nil
				})
			}
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "Full export completed",
		"users", len(users),
		"sheets_written", exported.Load(),
		log.FieldOperation, log.OpExport)
	return nil
}

func (w *ExportWorker) export(ctx context.Context, user string, p profile.Profile, rep core.Report) error {
	if w.writer == nil {
		w.logger.InfoContext(ctx, "Report export skipped, no spreadsheet configured",
			log.FieldUser, user,
			log.FieldProfile, p.Name.String(),
			log.FieldYear, rep.Year,
			log.FieldTotalSpent, core.FormatAmount(rep.TotalSpent))
		return nil
	}
	if err := w.writer.WriteReport(ctx, user, p.Name.String(), rep); err != nil {
		return fmt.Errorf("write %d report for %s/%s: %w", rep.Year, user, p.Name, err)
	}
	w.logger.InfoContext(ctx, "Report exported",
		log.FieldUser, user,
		log.FieldProfile, p.Name.String(),
		log.FieldYear, rep.Year,
		log.FieldOperation, log.OpExport)
	return nil
}
