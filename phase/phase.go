// Package phase implements the Phase Orchestrator: it runs the strict
// eight-phase pipeline (extract, sort, then one grouper per table in the
// order coinbase's vout dependency requires), checkpointing metadata after
// each phase so a failure resumes cleanly instead of restarting from
// scratch.
package phase

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/extract"
	"github.com/jeremyandrews/addrindex/group"
	"github.com/jeremyandrews/addrindex/logger"
	"github.com/jeremyandrews/addrindex/meta"
	"github.com/jeremyandrews/addrindex/notify"
	"github.com/jeremyandrews/addrindex/orphan"
	"github.com/jeremyandrews/addrindex/rpc"
	"github.com/jeremyandrews/addrindex/sortutil"
	"github.com/jeremyandrews/addrindex/stage"
	"github.com/jeremyandrews/addrindex/store"
)

var log = logger.Get(logger.SubsystemTags.PHAS)

// Options configures one orchestrator run.
type Options struct {
	WorkingDir    string
	CompressLevel int
	Limit         int64
	StartHash     string
	Mode          group.Mode
	Single        bool
	SortConfig    sortutil.Config
	SkipCap       int
	Symbol        string
}

// Orchestrator runs the pipeline for one coin.
type Orchestrator struct {
	Store    *store.Store
	Client   *rpc.Client
	Notifier *notify.Notifier
	Meta     *meta.Metadata
	MetaPath string

	touchedAddresses []string
	forcedStartHash  string
}

// Run executes every not-yet-completed phase, in order, checkpointing
// metadata after each one. If opts.Single is set, it stops after running
// the first phase it actually executes (not merely one it skipped because
// it was already complete).
//
// In upsert mode it first checks the previously-recorded last-processed
// block for a reorg and, if one is found, unwinds the orphaned side branch
// before the pipeline runs, matching the original's unwind_orphaned_blocks
// call site at the top of the incremental driver.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	if opts.Mode == group.ModeUpsert {
		if err := o.unwindOrphans(ctx, opts); err != nil {
			return errors.Wrap(err, "unwinding orphan blocks")
		}
	}

	for _, phaseName := range meta.Order() {
		if o.Meta.Completed(phaseName) {
			log.Infof("phase %s already completed, skipping", phaseName)
			continue
		}

		log.Infof("running phase %s", phaseName)
		if err := o.runPhase(ctx, phaseName, opts); err != nil {
			return errors.Wrapf(err, "phase %s failed", phaseName)
		}

		if err := o.Meta.Save(o.MetaPath); err != nil {
			return errors.Wrap(err, "checkpointing metadata")
		}

		if opts.Single {
			log.Infof("single-phase mode: stopping after %s", phaseName)
			return nil
		}
	}

	if opts.Mode == group.ModeUpsert && o.Notifier != nil && len(o.touchedAddresses) > 0 {
		if summary, ok, err := o.Meta.Extract(); err == nil && ok {
			o.Notifier.NotifyNewBlock(ctx, opts.Symbol, 0, summary.LastProcessedBlock, 0, o.touchedAddresses)
		}
	}
	return nil
}

func (o *Orchestrator) runPhase(ctx context.Context, phaseName string, opts Options) error {
	switch phaseName {
	case meta.PhaseExtract:
		return o.runExtract(ctx, opts)
	case meta.PhaseSort:
		return o.runSort(ctx, opts)
	case meta.PhaseGroupVout:
		return o.runGroup(ctx, phaseName, stage.Vout, opts, func(r *stage.Reader, bulkPath string) (group.Result, error) {
			return group.RunVout(ctx, r, o.Store, opts.Mode, bulkPath)
		})
	case meta.PhaseGroupCoinbase:
		return o.runGroup(ctx, phaseName, stage.Coinbase, opts, func(r *stage.Reader, bulkPath string) (group.Result, error) {
			return group.RunCoinbase(ctx, r, o.Store, opts.Mode, bulkPath)
		})
	case meta.PhaseGroupVinSpent:
		return o.runGroup(ctx, phaseName, stage.VinSpent, opts, func(r *stage.Reader, bulkPath string) (group.Result, error) {
			return group.RunVinSpent(ctx, r, o.Store, opts.Mode, bulkPath)
		})
	case meta.PhaseGroupVinTxid:
		return o.runGroup(ctx, phaseName, stage.VinTxid, opts, func(r *stage.Reader, bulkPath string) (group.Result, error) {
			return group.RunVinTxid(ctx, r, o.Store, opts.Mode, bulkPath)
		})
	case meta.PhaseGroupAddress:
		return o.runGroupAddress(ctx, opts)
	case meta.PhaseGroupBlock:
		return o.runGroup(ctx, phaseName, stage.Block, opts, func(r *stage.Reader, bulkPath string) (group.Result, error) {
			return group.RunBlock(ctx, r, o.Store, opts.Mode, bulkPath)
		})
	default:
		return errors.Errorf("unknown phase %q", phaseName)
	}
}

// unwindOrphans checks the last block recorded by the previous extract run
// and, if it has been displaced onto a side branch, deletes the orphaned
// writes and redirects the next extract to resume from the rejoined
// canonical chain. A missing prior extract summary (first run) is a no-op.
func (o *Orchestrator) unwindOrphans(ctx context.Context, opts Options) error {
	prior, ok, err := o.Meta.Extract()
	if err != nil {
		return err
	}
	if !ok || prior.LastProcessedBlock == "" {
		return nil
	}

	result, err := orphan.Unwind(ctx, o.Client, o.Store, o.Notifier, opts.Symbol, prior.LastProcessedBlock)
	if err != nil {
		return err
	}
	if result.BlocksUnwound == 0 {
		return nil
	}

	log.Warnf("unwound %d orphaned block(s); resuming extraction from %s", result.BlocksUnwound, result.ResumeHash)
	o.forcedStartHash = result.ResumeHash
	o.Meta.ClearFrom(meta.PhaseExtract)
	return o.Meta.Save(o.MetaPath)
}

func (o *Orchestrator) runExtract(ctx context.Context, opts Options) error {
	w, err := extract.OpenWriters(opts.WorkingDir, opts.CompressLevel)
	if err != nil {
		return err
	}
	defer w.Close()

	startHash := opts.StartHash
	if o.forcedStartHash != "" {
		startHash = o.forcedStartHash
	} else if prior, ok, err := o.Meta.Extract(); err != nil {
		return err
	} else if ok && prior.NextBlockHash != "" {
		startHash = prior.NextBlockHash
	}

	summary, err := extract.Run(ctx, o.Client, w, startHash, opts.Limit)
	if err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	return o.Meta.SetExtract(meta.ExtractSummary{
		Vout: summary.Vout, VinSpent: summary.VinSpent, VinTxid: summary.VinTxid,
		Coinbase: summary.Coinbase, Address: summary.Address, Block: summary.Block,
		LastProcessedBlock: summary.LastProcessedHash, NextBlockHash: summary.NextBlockHash,
		Limit: opts.Limit,
	})
}

func (o *Orchestrator) runSort(ctx context.Context, opts Options) error {
	for _, table := range stage.Tables() {
		src := fmt.Sprintf("%s/%s.csv.gz", opts.WorkingDir, table)
		dst := fmt.Sprintf("%s/%s_sorted.csv.gz", opts.WorkingDir, table)
		if err := sortutil.Sort(ctx, src, dst, opts.SortConfig); err != nil {
			return errors.Wrapf(err, "sorting %s", table)
		}
	}
	return o.Meta.SetGroup(meta.PhaseSort, meta.GroupSummary{})
}

func (o *Orchestrator) runGroup(ctx context.Context, phaseName, table string, opts Options, run func(r *stage.Reader, bulkPath string) (group.Result, error)) error {
	sortedPath := fmt.Sprintf("%s/%s_sorted.csv.gz", opts.WorkingDir, table)
	r, err := stage.NewReader(sortedPath)
	if err != nil {
		return errors.Wrapf(err, "opening sorted %s staging file", table)
	}
	defer r.Close()

	bulkPath := fmt.Sprintf("%s/%s_bulk.csv", opts.WorkingDir, table)
	result, err := run(r, bulkPath)
	if err != nil {
		return err
	}

	return o.Meta.SetGroup(phaseName, meta.GroupSummary{Documents: result.Documents, Skipped: result.Skipped})
}

func (o *Orchestrator) runGroupAddress(ctx context.Context, opts Options) error {
	sortedPath := fmt.Sprintf("%s/%s_sorted.csv.gz", opts.WorkingDir, stage.Address)
	r, err := stage.NewReader(sortedPath)
	if err != nil {
		return errors.Wrapf(err, "opening sorted address staging file")
	}
	defer r.Close()

	bulkPath := fmt.Sprintf("%s/%s_bulk.csv", opts.WorkingDir, stage.Address)
	result, err := group.RunAddress(ctx, r, o.Store, opts.Mode, bulkPath, opts.SkipCap)
	if err != nil {
		return err
	}

	o.touchedAddresses = append(o.touchedAddresses, result.TouchedAddresses...)

	return o.Meta.SetGroup(meta.PhaseGroupAddress, meta.GroupSummary{Documents: result.Documents, Skipped: result.Skipped})
}
