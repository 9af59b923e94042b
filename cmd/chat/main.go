package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"marketchat/api"
	"marketchat/auth"
	"marketchat/config"
	"marketchat/domain"
	"marketchat/repositories"
	"marketchat/sink"
	"marketchat/store"
	"marketchat/transport"
)

// Exit codes to provide meaningful status to the operating system or service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the session lifecycle, and
// centralizes error reporting so deferred cleanup always executes.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var cfg config.Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	credential := auth.Credential(cfg.Token)

	// 2. Collaborators
	conn := transport.New(logger, cfg)
	client := api.NewClient(logger, cfg, credential)

	engine, err := store.New(logger, cfg, conn, client, credential)
	if err != nil {
		return exitConfig, fmt.Errorf("invalid credential: %w", err)
	}
	engine.OnSendFailure(func(room domain.RoomID, content string, sendErr error) {
		color.Red.Printf("send failed in room %d: %v (use 'retry' to resend)\n", room, sendErr)
	})

	// 3. Optional transcript archive (BadgerDB + Bluge)
	if cfg.ArchiveEnabled {
		db, err := badger.Open(badger.DefaultOptions(cfg.BadgerFilepath).
			WithLoggingLevel(badger.ERROR))
		if err != nil {
			return exitRuntime, fmt.Errorf("archive database opening failed: %w", err)
		}
		defer func() {
			logger.Info("Closing BadgerDB...")
			_ = db.Close()
		}()

		blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(cfg.BlugeFilepath))
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
		}
		defer func() {
			logger.Info("Closing Bluge...")
			_ = blugeWriter.Close()
		}()

		repository := repositories.NewTranscriptRepository(db, blugeWriter, logger, cfg.LimitMessages)
		engine.Add(sink.NewArchiveSink(repository, logger))
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Start the session
	if err := engine.Connect(ctx); err != nil {
		return exitRuntime, fmt.Errorf("session failed to start: %w", err)
	}
	defer engine.Disconnect()

	logger.Info("Session started", "user", engine.Self().Nickname)

	// 6. Command loop until EOF or signal
	if err := commandLoop(ctx, engine); err != nil {
		return exitRuntime, err
	}

	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// commandLoop reads one command per line from stdin and drives the engine.
func commandLoop(ctx context.Context, engine *store.Store) error {
	scanner := bufio.NewScanner(os.Stdin)
	printHelp()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			if err := execute(ctx, engine, line); err != nil {
				color.Red.Println(err)
			}
		}
	}
}

func execute(ctx context.Context, engine *store.Store, line string) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	switch cmd {
	case "":
		return nil
	case "help":
		printHelp()
		return nil
	case "rooms":
		renderRooms(engine)
		return nil
	case "chat":
		engine.ToggleChat()
		return nil
	case "start":
		listingID, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("usage: start <listing-id>")
		}
		room, err := engine.StartChatForListing(ctx, listingID)
		if err != nil {
			return err
		}
		return engine.OpenRoom(ctx, room.ID)
	case "open":
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("usage: open <room-id>")
		}
		if err := engine.OpenRoom(ctx, domain.RoomID(id)); err != nil {
			return err
		}
		renderMessages(engine)
		return nil
	case "close":
		engine.CloseRoom()
		return nil
	case "send":
		engine.Typing()
		engine.SendMessage(arg)
		return nil
	case "retry":
		for _, p := range engine.PendingSends() {
			if p.State == store.SendStateFailed {
				return engine.RetrySend(p.ID)
			}
		}
		return fmt.Errorf("nothing to retry")
	case "older":
		if err := engine.FetchOlderMessages(ctx); err != nil {
			return err
		}
		renderMessages(engine)
		return nil
	case "leave":
		return engine.LeaveRoom(ctx)
	case "messages":
		renderMessages(engine)
		return nil
	default:
		return fmt.Errorf("unknown command %q, try 'help'", cmd)
	}
}

func printHelp() {
	fmt.Println("commands: rooms | chat | start <listing-id> | open <room-id> | messages | send <text> | retry | older | close | leave | help")
}

func renderRooms(engine *store.Store) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Room", "Listing", "With", "Last message", "Unread"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	self := engine.Self()
	for _, room := range engine.Rooms() {
		last, unread := "", ""
		if room.LastMessage != nil {
			last = room.LastMessage.Content
		}
		if room.UnreadCount > 0 {
			unread = color.Bold.Render(strconv.Itoa(room.UnreadCount))
		}
		with := "-"
		if opponent, ok := room.Opponent(self.UserID); ok {
			with = opponent.Nickname
			if room.Inactive {
				with += " (left)"
			}
		}
		table.Append([]string{
			strconv.Itoa(int(room.ID)),
			room.Listing.Title,
			with,
			last,
			unread,
		})
	}
	table.Render()
}

func renderMessages(engine *store.Store) {
	room := engine.ActiveRoom()
	if room == 0 {
		color.Yellow.Println("no open room")
		return
	}
	self := engine.Self()
	for _, msg := range engine.Messages(room) {
		stamp := msg.CreatedAt.Local().Format("15:04")
		switch {
		case msg.System:
			color.Gray.Printf("%s -- %s --\n", stamp, msg.Content)
		case msg.Sender.ID == self.UserID:
			color.Cyan.Printf("%s %s: %s\n", stamp, "me", msg.Content)
		default:
			fmt.Printf("%s %s: %s\n", stamp, msg.Sender.Nickname, msg.Content)
		}
	}
	if nickname := engine.TypingNickname(); nickname != "" {
		color.Gray.Printf("%s is typing...\n", nickname)
	}
}
