// Command daysync is the device-side sync tool: it hosts or joins a sync
// room through the relay, transfers one snapshot over the negotiated
// channel, and merges received snapshots into the local file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/worldlyfantasy/priospace-sub000/internal/client"
	"github.com/worldlyfantasy/priospace-sub000/internal/merge"
	"github.com/worldlyfantasy/priospace-sub000/internal/models"
	"github.com/worldlyfantasy/priospace-sub000/internal/protocol"
	"github.com/worldlyfantasy/priospace-sub000/internal/snapshot"
)

const sessionTimeout = 5 * time.Minute

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()
	if os.Getenv("DAYSYNC_DEBUG") == "" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	var err error
	switch os.Args[1] {
	case "host":
		err = runHost(logger, os.Args[2:])
	case "join":
		err = runJoin(logger, os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	case "merge":
		err = runMerge(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: daysync <command> [flags]

commands:
  host    create a room and send the local snapshot to the first peer
  join    join a room, receive a snapshot and merge it into the local file
  export  write the local snapshot to an export file
  import  merge an export file into the local snapshot
  merge   offline merge of two export files`)
}

// openStore selects the local snapshot backend: the sqlite database when
// -db (or DAYSYNC_DB) is set, the JSON file otherwise. The returned func
// releases the backend.
func openStore(ctx context.Context, file, db string) (snapshot.Store, func(), error) {
	if db == "" {
		db = os.Getenv("DAYSYNC_DB")
	}
	if db != "" {
		st, err := snapshot.NewSQLiteStore(ctx, db)
		if err != nil {
			return nil, nil, fmt.Errorf("open snapshot db: %w", err)
		}
		return st, st.Close, nil
	}
	return snapshot.NewFileStore(file), func() {}, nil
}

func runHost(logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("host", flag.ExitOnError)
	relayURL := fs.String("relay", "ws://localhost:8080/ws", "relay websocket URL")
	file := fs.String("file", "snapshot.json", "local snapshot file")
	db := fs.String("db", "", "sqlite snapshot database (overrides -file; also DAYSYNC_DB)")
	room := fs.String("room", "", "room code (random if empty)")
	fs.Parse(args)

	code := *room
	if code == "" {
		code = protocol.NewRoomCode()
	} else if !protocol.ValidRoomCode(code) {
		return fmt.Errorf("room code must be 6 uppercase alphanumerics, got %q", code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()

	store, release, err := openStore(ctx, *file, *db)
	if err != nil {
		return err
	}
	defer release()
	snap, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	sess := client.NewSession(logger)
	defer sess.Reset()

	if err := sess.Host(ctx, *relayURL, code); err != nil {
		return err
	}
	fmt.Printf("room code: %s\nwaiting for a peer to join...\n", code)

	peerID, err := sess.WaitForPeer(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("peer %s joined, sending snapshot\n", peerID)

	if err := sess.SendSnapshot(ctx, peerID, snap); err != nil {
		return err
	}
	fmt.Println("snapshot shared")
	return nil
}

func runJoin(logger zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	relayURL := fs.String("relay", "ws://localhost:8080/ws", "relay websocket URL")
	file := fs.String("file", "snapshot.json", "local snapshot file")
	db := fs.String("db", "", "sqlite snapshot database (overrides -file; also DAYSYNC_DB)")
	room := fs.String("room", "", "room code to join")
	applySettings := fs.Bool("apply-settings", false, "also adopt the sender's theme and dark mode")
	fs.Parse(args)

	if !protocol.ValidRoomCode(*room) {
		return fmt.Errorf("room code must be 6 uppercase alphanumerics, got %q", *room)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()

	store, release, err := openStore(ctx, *file, *db)
	if err != nil {
		return err
	}
	defer release()
	local, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	sess := client.NewSession(logger)
	defer sess.Reset()

	if err := sess.Join(ctx, *relayURL, *room); err != nil {
		return err
	}
	fmt.Println("joined, waiting for snapshot...")

	incoming, err := sess.ReceiveSnapshot(ctx)
	if err != nil {
		return err
	}

	merged, stats := merge.Merge(local, incoming, merge.Options{ApplySettings: *applySettings})
	if err := store.Save(ctx, merged); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	printStats(stats)
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	file := fs.String("file", "snapshot.json", "local snapshot file")
	db := fs.String("db", "", "sqlite snapshot database (overrides -file; also DAYSYNC_DB)")
	out := fs.String("out", "", "export file to write")
	fs.Parse(args)

	if *out == "" {
		return fmt.Errorf("-out is required")
	}

	ctx := context.Background()
	store, release, err := openStore(ctx, *file, *db)
	if err != nil {
		return err
	}
	defer release()
	snap, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if err := snapshot.NewFileStore(*out).Save(ctx, snap); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", *out)
	return nil
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "snapshot.json", "local snapshot file")
	db := fs.String("db", "", "sqlite snapshot database (overrides -file; also DAYSYNC_DB)")
	in := fs.String("in", "", "export file to import")
	applySettings := fs.Bool("apply-settings", false, "also adopt the imported theme and dark mode")
	fs.Parse(args)

	if *in == "" {
		return fmt.Errorf("-in is required")
	}

	ctx := context.Background()
	store, release, err := openStore(ctx, *file, *db)
	if err != nil {
		return err
	}
	defer release()
	local, err := store.Load(ctx)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	incoming, err := snapshot.Decode(data)
	if err != nil {
		return err
	}

	merged, stats := merge.Merge(local, incoming, merge.Options{ApplySettings: *applySettings})
	if err := store.Save(ctx, merged); err != nil {
		return err
	}
	printStats(stats)
	return nil
}

func runMerge(args []string) error {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	localPath := fs.String("local", "", "local export file")
	incomingPath := fs.String("incoming", "", "incoming export file")
	out := fs.String("out", "", "merged output file")
	applySettings := fs.Bool("apply-settings", false, "adopt the incoming theme and dark mode")
	fs.Parse(args)

	if *localPath == "" || *incomingPath == "" || *out == "" {
		return fmt.Errorf("-local, -incoming and -out are required")
	}

	ctx := context.Background()
	local, err := snapshot.NewFileStore(*localPath).Load(ctx)
	if err != nil {
		return err
	}
	incoming, err := snapshot.NewFileStore(*incomingPath).Load(ctx)
	if err != nil {
		return err
	}

	merged, stats := merge.Merge(local, incoming, merge.Options{ApplySettings: *applySettings})
	if err := snapshot.NewFileStore(*out).Save(ctx, merged); err != nil {
		return err
	}
	printStats(stats)
	return nil
}

func printStats(stats models.ChangeStats) {
	if stats.Empty() {
		fmt.Println("already in sync, nothing changed")
		return
	}
	fmt.Printf("merged: %d new tasks, %d updated tasks, %d new subtasks, %d new tags, %d new habits\n",
		stats.NewTasks, stats.UpdatedTasks, stats.NewSubtasks, stats.NewTags, stats.NewHabits)
	if stats.SettingsApplied {
		fmt.Println("settings applied")
	}
}
