package admin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

var (
	ErrNoOwner    = errors.New("an owner id is required (-owner or $DISCORD_OWNER_ID)")
	ErrNoProjects = errors.New("no project notes carry a thread id; refusing to clean up")
)

// threadNameRunes is Discord's limit on thread names.
const threadNameRunes = 100

// InitMessage resets the runner session in a project thread and asks it to
// recall the project.
func InitMessage(project string) string {
	return "/clear\n" + project + "に関して思い出して"
}

type SyncOptions struct {
	Dir       string
	ChannelID string
	DryRun    bool
	// Reinit posts the init message to threads that already exist.
	Reinit bool
}

// SyncResult counts outcomes. In a dry run Created and Reinited count what
// would have happened.
type SyncResult struct {
	Existing int
	Matched  int
	Created  int
	Reinited int
	Failed   int
}

// channelThreads returns the active threads whose parent is channelID.
func (a *Admin) channelThreads(ctx context.Context, channelID string) ([]Thread, error) {
	info, err := a.api.Channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if info.GuildID == "" {
		return nil, ErrNoGuild
	}
	active, err := a.api.ActiveThreads(ctx, info.GuildID)
	if err != nil {
		return nil, err
	}
	var out []Thread
	for _, t := range active {
		if t.ParentID == channelID {
			out = append(out, t)
		}
	}
	return out, nil
}

// SyncProjects gives every project note one thread under the channel. A
// note keeps a thread id that still resolves; otherwise it is matched to an
// existing thread by name, or a new thread is opened and primed with the
// init message. The chosen id is written back to the note.
func (a *Admin) SyncProjects(ctx context.Context, o SyncOptions) (SyncResult, error) {
	projects, err := a.CollectProjects(o.Dir)
	if err != nil {
		return SyncResult{}, err
	}
	fmt.Fprintf(a.out, "\n📁 projects: %d\n", len(projects))
	if o.Reinit {
		fmt.Fprintln(a.out, "🔄 reinit: existing threads get the init message too")
	}

	threads, err := a.channelThreads(ctx, o.ChannelID)
	if err != nil {
		return SyncResult{}, err
	}
	fmt.Fprintf(a.out, "💬 threads in channel: %d\n", len(threads))
	byID := make(map[string]Thread, len(threads))
	for _, t := range threads {
		byID[t.ID] = t
	}

	var res SyncResult
	for _, p := range projects {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		b, err := os.ReadFile(p.NotePath)
		if err != nil {
			fmt.Fprintf(a.out, "  ❌ [%s] %v\n", p.Name, err)
			res.Failed++
			continue
		}
		id, err := ThreadID(string(b))
		if err != nil {
			fmt.Fprintf(a.out, "  ❌ [%s] %v\n", p.Name, err)
			res.Failed++
			continue
		}

		if id != "" {
			if t, ok := byID[id]; ok {
				a.syncExisting(ctx, o, p, t, &res)
				continue
			}
			fmt.Fprintf(a.out, "  ⚠️  [%s] thread %s from the note is gone, matching again\n", p.Name, id)
		}

		if t, ok := MatchThread(p.Name, threads); ok {
			fmt.Fprintf(a.out, "  🔗 [%s] matched thread '%s' (id: %s)\n", p.Name, t.Name, t.ID)
			if !o.DryRun {
				if err := writeThreadID(p.NotePath, t.ID); err != nil {
					fmt.Fprintf(a.out, "      ❌ %v\n", err)
					res.Failed++
					continue
				}
			}
			res.Matched++
		} else {
			fmt.Fprintf(a.out, "  ➕ [%s] new thread\n", p.Name)
			if o.DryRun {
				res.Created++
				continue
			}
			if a.createProjectThread(ctx, o.ChannelID, p) {
				res.Created++
			} else {
				res.Failed++
			}
		}

		if !o.DryRun {
			if err := a.wait(ctx); err != nil {
				return res, err
			}
		}
	}

	a.printSyncSummary(o, res)
	return res, nil
}

func (a *Admin) syncExisting(ctx context.Context, o SyncOptions, p Project, t Thread, res *SyncResult) {
	switch {
	case o.Reinit && o.DryRun:
		fmt.Fprintf(a.out, "  🔄 [%s] [DRY-RUN] would reinit '%s'\n", p.Name, t.Name)
		res.Reinited++
	case o.Reinit:
		fmt.Fprintf(a.out, "  🔄 [%s] reinit '%s'\n", p.Name, t.Name)
		if err := a.api.SendMessage(ctx, t.ID, InitMessage(p.Name)); err != nil {
			fmt.Fprintf(a.out, "      ❌ init message: %v\n", err)
			res.Failed++
			return
		}
		res.Reinited++
		_ = a.wait(ctx)
	default:
		fmt.Fprintf(a.out, "  ✅ [%s] thread '%s' (id: %s)\n", p.Name, t.Name, t.ID)
		res.Existing++
	}
}

func (a *Admin) createProjectThread(ctx context.Context, channelID string, p Project) bool {
	t, err := a.api.CreateThread(ctx, channelID, clip(p.Name, threadNameRunes))
	if err != nil {
		fmt.Fprintf(a.out, "      ❌ create thread: %v\n", err)
		return false
	}
	if err := writeThreadID(p.NotePath, t.ID); err != nil {
		fmt.Fprintf(a.out, "      ❌ thread %s created but note not updated: %v\n", t.ID, err)
		return false
	}
	fmt.Fprintf(a.out, "      → created id: %s\n", t.ID)
	if err := a.wait(ctx); err != nil {
		return true
	}
	if err := a.api.SendMessage(ctx, t.ID, InitMessage(p.Name)); err != nil {
		fmt.Fprintf(a.out, "      ⚠️  init message: %v\n", err)
	} else {
		fmt.Fprintln(a.out, "      → init message posted")
	}
	return true
}

func (a *Admin) printSyncSummary(o SyncOptions, res SyncResult) {
	fmt.Fprintln(a.out, "\n📊 summary:")
	fmt.Fprintf(a.out, "  existing: %d\n", res.Existing)
	fmt.Fprintf(a.out, "  matched : %d\n", res.Matched)
	if o.DryRun {
		fmt.Fprintf(a.out, "  to create: %d\n", res.Created)
		if o.Reinit {
			fmt.Fprintf(a.out, "  to reinit: %d\n", res.Reinited)
		}
		fmt.Fprintln(a.out, "\n⚠️  DRY-RUN: drop -dry-run to apply")
		return
	}
	fmt.Fprintf(a.out, "  created : %d\n", res.Created)
	if o.Reinit {
		fmt.Fprintf(a.out, "  reinited: %d\n", res.Reinited)
	}
	fmt.Fprintf(a.out, "  failed  : %d\n", res.Failed)
}

type JoinResult struct {
	Joined int
	Failed int
}

// JoinProjects adds ownerID to every project thread so they show in the
// owner's sidebar.
func (a *Admin) JoinProjects(ctx context.Context, dir, ownerID string, dryRun bool) (JoinResult, error) {
	if ownerID == "" {
		return JoinResult{}, ErrNoOwner
	}
	ids, err := ProjectThreadIDs(dir)
	if err != nil {
		return JoinResult{}, err
	}
	fmt.Fprintf(a.out, "\n👤 adding %s to %d threads\n", ownerID, len(ids))

	var res JoinResult
	for i, id := range ids {
		switch {
		case dryRun:
			fmt.Fprintf(a.out, "  [DRY-RUN] join %s\n", id)
			res.Joined++
		default:
			if err := a.api.AddThreadMember(ctx, id, ownerID); err != nil {
				fmt.Fprintf(a.out, "  ❌ %s: %v\n", id, err)
				res.Failed++
			} else {
				fmt.Fprintf(a.out, "  ✅ %s\n", id)
				res.Joined++
			}
			if i < len(ids)-1 {
				if err := a.wait(ctx); err != nil {
					return res, err
				}
			}
		}
	}
	fmt.Fprintf(a.out, "\ndone: %d/%d\n", res.Joined, len(ids))
	return res, nil
}

// CleanupThreads deletes every active thread under the channel that no
// project note claims.
func (a *Admin) CleanupThreads(ctx context.Context, dir, channelID string, dryRun bool) (Result, error) {
	keep, err := ProjectThreadIDs(dir)
	if err != nil {
		return Result{}, err
	}
	if len(keep) == 0 {
		return Result{}, ErrNoProjects
	}
	fmt.Fprintf(a.out, "\n🧹 protected threads: %d\n", len(keep))
	protected := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		protected[id] = struct{}{}
	}

	threads, err := a.channelThreads(ctx, channelID)
	if err != nil {
		return Result{}, err
	}
	var targets []Thread
	for _, t := range threads {
		if _, ok := protected[t.ID]; !ok {
			targets = append(targets, t)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
	fmt.Fprintf(a.out, "💬 threads in channel: %d / to delete: %d\n", len(threads), len(targets))
	if len(targets) == 0 {
		fmt.Fprintln(a.out, "nothing to delete")
		return Result{}, nil
	}

	fmt.Fprintln(a.out)
	for _, t := range targets {
		fmt.Fprintf(a.out, "  🗑  [%s] %s\n", t.ID, clip(orDefault(t.Name, "(untitled)"), 60))
	}
	if dryRun {
		fmt.Fprintln(a.out, "\n⚠️  DRY-RUN: nothing will be deleted")
		return Result{Deleted: len(targets)}, nil
	}

	var res Result
	for i, t := range targets {
		if a.deleteOne(ctx, t.ID, clip(orDefault(t.Name, t.ID), 50), false) {
			res.Deleted++
		} else {
			res.Failed++
		}
		if i < len(targets)-1 {
			if err := a.wait(ctx); err != nil {
				return res, err
			}
		}
	}
	fmt.Fprintf(a.out, "\ndone: %d/%d deleted\n", res.Deleted, len(targets))
	return res, nil
}

// wait sleeps for the configured pause between writes.
func (a *Admin) wait(ctx context.Context) error {
	if a.pause <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(a.pause):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
