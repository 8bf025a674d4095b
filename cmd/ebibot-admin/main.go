// Command ebibot-admin inspects and prunes the threads under a Discord channel
// and pairs project notes with their threads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ebibot/internal/admin"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage()
		return 0
	}

	token := strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN"))
	if token == "" {
		fmt.Fprintln(os.Stderr, "DISCORD_BOT_TOKEN is not set")
		return 1
	}
	api, err := admin.NewDiscordAPI(token)
	if err != nil {
		fmt.Fprintln(os.Stderr, "discord:", err)
		return 1
	}
	a := admin.New(api, os.Stdout)

	switch args[0] {
	case "list-threads":
		err = cmdListThreads(ctx, a, args[1:])
	case "delete-threads":
		err = cmdDeleteThreads(ctx, a, args[1:])
	case "delete-thread":
		err = cmdDeleteThread(ctx, a, args[1:])
	case "channel-info":
		err = cmdChannelInfo(ctx, a, args[1:])
	case "sync-projects":
		err = cmdSyncProjects(ctx, a, args[1:])
	case "join-projects":
		err = cmdJoinProjects(ctx, a, args[1:])
	case "cleanup-threads":
		err = cmdCleanupThreads(ctx, a, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage), errors.Is(err, admin.ErrNoFilter), errors.Is(err, admin.ErrNoOwner):
		fmt.Fprintln(os.Stderr, "error:", err)
		return 2
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
}

var errUsage = errors.New("usage error")

func printUsage() {
	fmt.Fprint(os.Stderr, `ebibot-admin: Discord thread and project management

Usage:
  ebibot-admin <command> [options]

Commands:
  list-threads   [-channel ID]                 List threads under a channel
  delete-threads [-channel ID] [filters]       Bulk delete threads
  delete-thread  THREAD_ID                     Delete one thread
  channel-info   [CHANNEL_ID]                  Show channel details
  sync-projects  -vault DIR [-channel ID] [-dry-run] [-reinit]
                                               Pair project notes with threads
  join-projects  -vault DIR [-owner ID] [-dry-run]
                                               Add the owner to project threads
  cleanup-threads -vault DIR [-channel ID] [-dry-run]
                                               Delete threads no project claims

Filters (delete-threads):
  -older-than N   threads created N or more days ago
  -keep-newest N  everything except the newest N
  -all            every thread
  -dry-run        print what would be deleted

Environment:
  DISCORD_BOT_TOKEN                 bot token (required)
  CLAUDE_CHANNEL_ID, DISCORD_CHANNEL_ID
                                    default channel
  EBIBOT_PROJECTS_DIR               default -vault
  DISCORD_OWNER_ID                  default -owner
`)
}

func defaultChannel() string {
	for _, k := range []string{"CLAUDE_CHANNEL_ID", "DISCORD_CHANNEL_ID"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func channelFlag(fs *flag.FlagSet) *string {
	return fs.String("channel", defaultChannel(), "channel id (default $CLAUDE_CHANNEL_ID or $DISCORD_CHANNEL_ID)")
}

func requireChannel(id string) error {
	if id == "" {
		return fmt.Errorf("%w: -channel is required when no default channel is set", errUsage)
	}
	return nil
}

func cmdListThreads(ctx context.Context, a *admin.Admin, args []string) error {
	fs := flag.NewFlagSet("list-threads", flag.ContinueOnError)
	channel := channelFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireChannel(*channel); err != nil {
		return err
	}
	return a.ListThreads(ctx, *channel)
}

func cmdDeleteThreads(ctx context.Context, a *admin.Admin, args []string) error {
	fs := flag.NewFlagSet("delete-threads", flag.ContinueOnError)
	channel := channelFlag(fs)
	olderThan := fs.Int("older-than", -1, "delete threads created N or more days ago")
	keepNewest := fs.Int("keep-newest", -1, "keep only the newest N threads")
	all := fs.Bool("all", false, "delete every thread")
	dryRun := fs.Bool("dry-run", false, "print targets without deleting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireChannel(*channel); err != nil {
		return err
	}
	res, err := a.DeleteThreads(ctx, *channel, admin.Filter{
		All:           *all,
		OlderThanDays: *olderThan,
		KeepNewest:    *keepNewest,
		DryRun:        *dryRun,
	})
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d deletions failed", res.Failed)
	}
	return nil
}

func cmdDeleteThread(ctx context.Context, a *admin.Admin, args []string) error {
	fs := flag.NewFlagSet("delete-thread", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: delete-thread takes exactly one THREAD_ID", errUsage)
	}
	return a.DeleteThread(ctx, fs.Arg(0))
}

func cmdChannelInfo(ctx context.Context, a *admin.Admin, args []string) error {
	fs := flag.NewFlagSet("channel-info", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	id := defaultChannel()
	if fs.NArg() > 0 {
		id = fs.Arg(0)
	}
	if err := requireChannel(id); err != nil {
		return err
	}
	return a.ChannelInfo(ctx, id)
}

func vaultFlag(fs *flag.FlagSet) *string {
	return fs.String("vault", strings.TrimSpace(os.Getenv("EBIBOT_PROJECTS_DIR")), "projects folder (default $EBIBOT_PROJECTS_DIR)")
}

func requireVault(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: -vault is required", errUsage)
	}
	return nil
}

func cmdSyncProjects(ctx context.Context, a *admin.Admin, args []string) error {
	fs := flag.NewFlagSet("sync-projects", flag.ContinueOnError)
	vault := vaultFlag(fs)
	channel := channelFlag(fs)
	dryRun := fs.Bool("dry-run", false, "print the plan without changing notes or threads")
	reinit := fs.Bool("reinit", false, "post the init message to existing threads too")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireVault(*vault); err != nil {
		return err
	}
	if err := requireChannel(*channel); err != nil {
		return err
	}
	res, err := a.SyncProjects(ctx, admin.SyncOptions{
		Dir:       *vault,
		ChannelID: *channel,
		DryRun:    *dryRun,
		Reinit:    *reinit,
	})
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d projects failed", res.Failed)
	}
	return nil
}

func cmdJoinProjects(ctx context.Context, a *admin.Admin, args []string) error {
	fs := flag.NewFlagSet("join-projects", flag.ContinueOnError)
	vault := vaultFlag(fs)
	owner := fs.String("owner", strings.TrimSpace(os.Getenv("DISCORD_OWNER_ID")), "user id to add (default $DISCORD_OWNER_ID)")
	dryRun := fs.Bool("dry-run", false, "print the threads without joining")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireVault(*vault); err != nil {
		return err
	}
	res, err := a.JoinProjects(ctx, *vault, *owner, *dryRun)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d joins failed", res.Failed)
	}
	return nil
}

func cmdCleanupThreads(ctx context.Context, a *admin.Admin, args []string) error {
	fs := flag.NewFlagSet("cleanup-threads", flag.ContinueOnError)
	vault := vaultFlag(fs)
	channel := channelFlag(fs)
	dryRun := fs.Bool("dry-run", false, "print targets without deleting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireVault(*vault); err != nil {
		return err
	}
	if err := requireChannel(*channel); err != nil {
		return err
	}
	res, err := a.CleanupThreads(ctx, *vault, *channel, *dryRun)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d deletions failed", res.Failed)
	}
	return nil
}
