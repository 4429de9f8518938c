// Package dispatcher implements the piece dispatcher: a shared job
// queue of pieces and a result channel of verified pieces, a
// work-stealing pool of one worker per peer, and the write to the
// destination file at each piece's correct offset (spec.md §4.7). It is
// adapted from the teacher's Torrent.Download/startDownloadWorker, with
// the worker pool driven by golang.org/x/sync/errgroup instead of bare
// goroutines with no join point, matching prxssh-rabbit's scheduler
// package for this exact shape.
package dispatcher

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"torrentcore/errs"
	"torrentcore/logging"
	"torrentcore/peerconn"
	"torrentcore/torrent"
)

// ResultBacklog is the result channel's capacity: small on purpose so a
// slow sink throttles how far ahead workers can race, per spec.md §5's
// backpressure design.
const ResultBacklog = 16

// DefaultProgressTimeout is how long the dispatcher waits for a new
// verified piece before concluding the download has stalled entirely,
// distinct from a single session's per-read Stalled timeout.
const DefaultProgressTimeout = 2 * time.Minute

// Sink is the destination the dispatcher writes verified pieces into.
// *os.File satisfies it directly.
type Sink interface {
	WriteAt(p []byte, off int64) (int, error)
}

// ProgressFunc is called after each piece is written, with the number
// of pieces completed so far and the total. Used to drive the CLI's
// progress bar; nil is fine if the caller doesn't care.
type ProgressFunc func(done, total int)

// Dispatcher owns the job queue and result channel for one download: it
// spawns one worker per peer endpoint, collects verified pieces, and
// writes each to its offset in Sink.
type Dispatcher struct {
	Torrent         *torrent.Torrent
	Peers           []peerconn.Endpoint
	LocalPeerID     [20]byte
	Sink            Sink
	SessionConfig   peerconn.Config
	ProgressTimeout time.Duration
	OnProgress      ProgressFunc
}

type verifiedPiece struct {
	index int
	bytes []byte
}

// Run drives the download to completion or failure. It returns nil once
// every piece has been verified and written, or an error (typically
// errs.NoProgress) if the download cannot make further progress.
func (d *Dispatcher) Run(ctx context.Context) error {
	n := d.Torrent.PieceCount()
	if n == 0 {
		return nil
	}
	if len(d.Peers) == 0 {
		return errs.New(errs.NoProgress, "no peers to download from")
	}

	progressTimeout := d.ProgressTimeout
	if progressTimeout == 0 {
		progressTimeout = DefaultProgressTimeout
	}

	jobs := make(chan peerconn.Job, n)
	for i := 0; i < n; i++ {
		jobs <- peerconn.Job{
			Index:        i,
			ExpectedHash: [20]byte(d.Torrent.PieceHashes[i]),
			Length:       int(d.Torrent.PieceLengthAt(i)),
		}
	}
	results := make(chan verifiedPiece, ResultBacklog)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	var activeWorkers int64 = int64(len(d.Peers))
	workerExited := make(chan struct{}, len(d.Peers))

	for _, endpoint := range d.Peers {
		endpoint := endpoint
		g.Go(func() error {
			defer func() {
				atomic.AddInt64(&activeWorkers, -1)
				workerExited <- struct{}{}
			}()
			return runWorker(gctx, endpoint, d.LocalPeerID, d.Torrent.InfoHash, d.SessionConfig, jobs, results)
		})
	}

	err := d.collect(runCtx, n, results, workerExited, &activeWorkers, progressTimeout, cancel)

	// cancel(), not closing jobs, is what tells every worker the
	// download is over: a worker blocked in a deadline-bound socket
	// read won't notice jobs closing anyway, and a send on a closed
	// jobs channel from the re-enqueue path below would still be free
	// to race a select's ctx.Done() case and panic. Leaving jobs open
	// and unreferenced once every worker has returned is enough; it is
	// garbage collected like any other channel with no reader.
	cancel()
	_ = g.Wait() // per-worker errors are recorded via logging; collect's error above is the only fatal signal

	return err
}

// collect reads verified pieces until every piece index has been
// written exactly once, or fails with errs.NoProgress (no piece within
// the progress timeout, or every worker gone), errs.IO (a sink write
// failed) or ctx's error.
func (d *Dispatcher) collect(ctx context.Context, n int, results <-chan verifiedPiece, workerExited <-chan struct{}, activeWorkers *int64, progressTimeout time.Duration, cancel context.CancelFunc) error {
	written := make(map[int]bool, n)
	completed := 0

	timer := time.NewTimer(progressTimeout)
	defer timer.Stop()

	for completed < n {
		select {
		case vp := <-results:
			if !written[vp.index] {
				if _, err := d.Sink.WriteAt(vp.bytes, int64(vp.index)*d.Torrent.PieceLength); err != nil {
					return errs.Wrapf(errs.IO, err, "writing piece %d", vp.index)
				}
				written[vp.index] = true
				completed++
				if d.OnProgress != nil {
					d.OnProgress(completed, n)
				}
				logging.Log.Debugf("piece %d/%d written", completed, n)
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(progressTimeout)

		case <-workerExited:
			if atomic.LoadInt64(activeWorkers) == 0 && completed < n {
				return errs.Newf(errs.NoProgress, "all workers exited with %d/%d pieces completed", completed, n)
			}

		case <-timer.C:
			return errs.Newf(errs.NoProgress, "no piece completed within %s", progressTimeout)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// runWorker runs one peer's session for the lifetime of the download:
// dial, handshake, then pull pieces from jobs until ctx is canceled or
// a transient error ends the session.
func runWorker(ctx context.Context, endpoint peerconn.Endpoint, localPeerID, infoHash [20]byte, cfg peerconn.Config, jobs chan peerconn.Job, results chan<- verifiedPiece) error {
	log := logging.WithPeer(endpoint.String())

	session, err := peerconn.Dial(ctx, endpoint, infoHash, localPeerID, cfg)
	if err != nil {
		log.Warnf("setup failed: %v", err)
		return nil // setup failure is recoverable at the dispatcher level: just one fewer worker
	}
	defer session.Close()

	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			buf, err := session.DownloadPiece(job)
			if err != nil {
				log.Warnf("piece %d failed: %v", job.Index, err)
				select {
				case jobs <- job:
				case <-ctx.Done():
					// Download is ending (NoProgress or success); dropping
					// the job here is fine, nothing will read it again.
				}
				return nil
			}
			select {
			case results <- verifiedPiece{index: job.Index, bytes: buf}:
			case <-ctx.Done():
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}
