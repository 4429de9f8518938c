// Command torrentcore is the CLI surface spec.md §6 treats as an
// external collaborator: six codecrafters-style subcommands over the
// bencode/torrent/trackerclient/peerconn/dispatcher core. Adapted from
// the teacher's single-mode main.go, restructured into one function per
// subcommand (with a flag.NewFlagSet for the two that take -o) the way
// matei-oltean-go-torrent's cmd layer does.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"torrentcore/bencode"
	"torrentcore/dispatcher"
	"torrentcore/errs"
	"torrentcore/logging"
	"torrentcore/peerconn"
	"torrentcore/torrent"
	"torrentcore/trackerclient"
)

func main() {
	if len(os.Args) < 2 {
		fatal(errs.New(errs.IO, "usage: torrentcore <decode|info|peers|handshake|download_piece|download> ..."))
	}

	var err error
	switch os.Args[1] {
	case "decode":
		err = runDecode(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "peers":
		err = runPeers(os.Args[2:])
	case "handshake":
		err = runHandshake(os.Args[2:])
	case "download_piece":
		err = runDownloadPiece(os.Args[2:])
	case "download":
		err = runDownload(os.Args[2:])
	default:
		err = errs.Newf(errs.IO, "unknown subcommand %q", os.Args[1])
	}
	if err != nil {
		fatal(err)
	}
}

// fatal prints the error chain on a single line and exits non-zero,
// per spec.md §7's propagation policy.
func fatal(err error) {
	fmt.Fprintln(os.Stderr, errs.Chain(err))
	os.Exit(1)
}

func generatePeerID() [20]byte {
	var id [20]byte
	copy(id[:], "-TC0001-")
	rand.Read(id[8:])
	return id
}

func loadTorrent(path string) (*torrent.Torrent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrapf(errs.IO, err, "opening %s", path)
	}
	defer f.Close()
	return torrent.Open(f)
}

func runDecode(args []string) error {
	if len(args) != 1 {
		return errs.New(errs.IO, "usage: torrentcore decode <bencode-string>")
	}
	v, _, err := bencode.Decode([]byte(args[0]))
	if err != nil {
		return err
	}
	out, err := json.Marshal(bencode.ToJSON(v))
	if err != nil {
		return errs.Wrap(errs.IO, err, "marshaling decoded value")
	}
	fmt.Println(string(out))
	return nil
}

func runInfo(args []string) error {
	if len(args) != 1 {
		return errs.New(errs.IO, "usage: torrentcore info <torrent>")
	}
	t, err := loadTorrent(args[0])
	if err != nil {
		return err
	}
	label := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("%s %s\n", label("Tracker URL:"), t.Announce)
	fmt.Printf("%s %d\n", label("Length:"), t.Length)
	fmt.Printf("%s %s\n", label("Info Hash:"), hex.EncodeToString(t.InfoHash[:]))
	fmt.Printf("%s %d\n", label("Piece Length:"), t.PieceLength)
	fmt.Printf("%s\n", label("Piece Hashes:"))
	for _, h := range t.PieceHashes {
		fmt.Println(hex.EncodeToString(h[:]))
	}
	return nil
}

func runPeers(args []string) error {
	if len(args) != 1 {
		return errs.New(errs.IO, "usage: torrentcore peers <torrent>")
	}
	t, err := loadTorrent(args[0])
	if err != nil {
		return err
	}
	peerID := generatePeerID()
	ctx, cancel := context.WithTimeout(context.Background(), trackerclient.Timeout)
	defer cancel()
	peers, err := trackerclient.Announce(ctx, t.Announce, t.InfoHash, peerID, t.Length)
	if err != nil {
		return err
	}
	for _, p := range peers {
		fmt.Println(p.String())
	}
	return nil
}

// runHandshake implements handshake <torrent> [ip:port]: when the
// endpoint is omitted it announces to the tracker and uses the first
// peer returned, matching the original client's behavior.
func runHandshake(args []string) error {
	if len(args) != 1 && len(args) != 2 {
		return errs.New(errs.IO, "usage: torrentcore handshake <torrent> [ip:port]")
	}
	t, err := loadTorrent(args[0])
	if err != nil {
		return err
	}

	var endpoint peerconn.Endpoint
	if len(args) == 2 {
		endpoint, err = peerconn.ParseEndpoint(args[1])
		if err != nil {
			return err
		}
	} else {
		peerID := generatePeerID()
		ctx, cancel := context.WithTimeout(context.Background(), trackerclient.Timeout)
		defer cancel()
		peers, err := trackerclient.Announce(ctx, t.Announce, t.InfoHash, peerID, t.Length)
		if err != nil {
			return err
		}
		if len(peers) == 0 {
			return errs.New(errs.Tracker, "tracker returned no peers to handshake with")
		}
		endpoint = peers[0]
	}

	localPeerID := generatePeerID()
	ctx, cancel := context.WithTimeout(context.Background(), peerconn.DefaultConfig().DialTimeout)
	defer cancel()
	session, err := peerconn.Dial(ctx, endpoint, t.InfoHash, localPeerID, peerconn.DefaultConfig())
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Printf("Peer ID: %s\n", hex.EncodeToString(session.RemotePeerID[:]))
	return nil
}

func runDownloadPiece(args []string) error {
	fs := flag.NewFlagSet("download_piece", flag.ContinueOnError)
	out := fs.String("o", "", "output file")
	if err := fs.Parse(args); err != nil {
		return errs.Wrap(errs.IO, err, "parsing flags")
	}
	rest := fs.Args()
	if *out == "" || len(rest) != 2 {
		return errs.New(errs.IO, "usage: torrentcore download_piece -o <out> <torrent> <index>")
	}
	t, err := loadTorrent(rest[0])
	if err != nil {
		return err
	}
	var index int
	if _, err := fmt.Sscanf(rest[1], "%d", &index); err != nil {
		return errs.Wrapf(errs.IO, err, "parsing piece index %q", rest[1])
	}
	if index < 0 || index >= t.PieceCount() {
		return errs.Newf(errs.TorrentInvariant, "piece index %d out of range [0,%d)", index, t.PieceCount())
	}

	peers, err := announceAll(t)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		return errs.New(errs.NoProgress, "no peers to download from")
	}

	localPeerID := generatePeerID()
	cfg := peerconn.DefaultConfig()
	var lastErr error
	for _, endpoint := range peers {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
		session, err := peerconn.Dial(ctx, endpoint, t.InfoHash, localPeerID, cfg)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		buf, err := session.DownloadPiece(peerconn.Job{
			Index:        index,
			ExpectedHash: [20]byte(t.PieceHashes[index]),
			Length:       int(t.PieceLengthAt(index)),
		})
		session.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if err := os.WriteFile(*out, buf, 0o644); err != nil {
			return errs.Wrapf(errs.IO, err, "writing %s", *out)
		}
		fmt.Printf("Piece %d downloaded to %s\n", index, *out)
		return nil
	}
	return errs.Wrap(errs.NoProgress, lastErr, "no peer served this piece")
}

func runDownload(args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	out := fs.String("o", "", "output file")
	if err := fs.Parse(args); err != nil {
		return errs.Wrap(errs.IO, err, "parsing flags")
	}
	rest := fs.Args()
	if *out == "" || len(rest) != 1 {
		return errs.New(errs.IO, "usage: torrentcore download -o <out> <torrent>")
	}
	t, err := loadTorrent(rest[0])
	if err != nil {
		return err
	}

	peers, err := announceAll(t)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(*out, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errs.Wrapf(errs.IO, err, "creating %s", *out)
	}
	defer f.Close()
	if err := f.Truncate(t.Length); err != nil {
		return errs.Wrapf(errs.IO, err, "truncating %s", *out)
	}

	bar := progressbar.Default(int64(t.PieceCount()), "downloading "+t.Name)

	d := &dispatcher.Dispatcher{
		Torrent:       t,
		Peers:         peers,
		LocalPeerID:   generatePeerID(),
		Sink:          f,
		SessionConfig: peerconn.DefaultConfig(),
		OnProgress: func(done, total int) {
			bar.Set(done)
		},
	}

	logging.Log.Infof("downloading %s: %d pieces from %d peers", t.Name, t.PieceCount(), len(peers))
	ctx := context.Background()
	if err := d.Run(ctx); err != nil {
		return err
	}
	fmt.Printf("\nDownloaded %s to %s\n", t.Name, *out)
	return nil
}

func announceAll(t *torrent.Torrent) ([]peerconn.Endpoint, error) {
	peerID := generatePeerID()
	ctx, cancel := context.WithTimeout(context.Background(), trackerclient.Timeout)
	defer cancel()
	return trackerclient.Announce(ctx, t.Announce, t.InfoHash, peerID, t.Length)
}
