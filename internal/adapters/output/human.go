package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pterm/pterm"

	"github.com/troubadour-audio/troubadour/internal/core"
	"github.com/troubadour-audio/troubadour/pkg/trb"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct{}

// Print renders human output.
func (HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case core.AddResult:
		return printAdd(data)
	case core.SkipResult:
		return printSkip(data)
	case core.RemoveResult:
		return printRemove(data)
	case core.StateResult:
		return printState(data)
	case core.StatusResult:
		return printStatus(data)
	case core.EventResult:
		return printEvent(data.Event)
	case core.RawResult:
		_, err := fmt.Fprintln(os.Stdout, data.Data)
		return err
	default:
		_, err := fmt.Fprintln(os.Stdout, "ok")
		return err
	}
}

func printAdd(result core.AddResult) error {
	if result.Added.SongsAdded == 0 {
		pterm.Warning.Println("nothing added")
		return nil
	}
	if result.Added.SongsAdded == 1 {
		pterm.Success.Printfln("queued %q (%d in queue)", result.Added.SongTitle, result.Added.QueueSize)
		return nil
	}
	pterm.Success.Printfln("queued %d tracks starting with %q (%d in queue)",
		result.Added.SongsAdded, result.Added.SongTitle, result.Added.QueueSize)
	return nil
}

func printSkip(result core.SkipResult) error {
	if result.Skipped.Status == "nothing_playing" {
		pterm.Info.Println("nothing playing")
		return nil
	}
	pterm.Success.Printfln("skipped %q", result.Skipped.SongTitle)
	return nil
}

func printRemove(result core.RemoveResult) error {
	pterm.Success.Printfln("removed %q (%d left)", result.Removed.SongTitle, result.Removed.QueueSize)
	return nil
}

func printStatus(result core.StatusResult) error {
	switch result.Status.Status {
	case "connected":
		pterm.Success.Printfln("connected to channel %d", result.Status.ChannelID)
	case "disconnected":
		pterm.Success.Println("disconnected")
	case "looping":
		pterm.Success.Printfln("looping %q", result.Status.SongTitle)
	case "loop_cleared":
		pterm.Success.Printfln("returned %q to the queue front", result.Status.SongTitle)
	default:
		_, err := fmt.Fprintln(os.Stdout, result.Status.Status)
		return err
	}
	return nil
}

func printState(result core.StateResult) error {
	header := fmt.Sprintf("guild %d", result.GuildID)
	if result.State.IsConnected {
		header += fmt.Sprintf("  [connected, channel %d]", result.State.ChannelID)
	} else {
		header += "  [disconnected]"
	}
	if _, err := fmt.Fprintln(os.Stdout, header); err != nil {
		return err
	}

	if result.State.CurrentSong != nil {
		marker := "paused"
		if result.State.IsPlaying {
			marker = "playing"
		}
		line := fmt.Sprintf("%s  %s", marker, formatSong(*result.State.CurrentSong))
		if _, err := fmt.Fprintln(os.Stdout, line); err != nil {
			return err
		}
	} else {
		if _, err := fmt.Fprintln(os.Stdout, "idle"); err != nil {
			return err
		}
	}
	if result.State.LoopSong != nil {
		if _, err := fmt.Fprintf(os.Stdout, "loop  %s\n", formatSong(*result.State.LoopSong)); err != nil {
			return err
		}
	}

	if len(result.State.Queue) == 0 {
		_, err := fmt.Fprintln(os.Stdout, "queue empty")
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "INDEX\tTITLE\tLEN\tREQUESTED BY"); err != nil {
		return err
	}
	for i, song := range result.State.Queue {
		_, err := fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, song.Title, formatDuration(song.Duration), song.RequesterName)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printEvent(evt trb.Message) error {
	ts := time.Unix(int64(evt.Timestamp), 0).Format("15:04:05")
	line := fmt.Sprintf("%s  guild %d  %s", ts, evt.GuildID, evt.Action)
	if detail := eventDetail(evt); detail != "" {
		line += "  " + detail
	}
	switch evt.Action {
	case trb.EvtPlayerError:
		pterm.Error.Println(line)
	case trb.EvtPlayerIdle:
		pterm.Info.Println(line)
	default:
		_, err := fmt.Fprintln(os.Stdout, line)
		return err
	}
	return nil
}

func eventDetail(evt trb.Message) string {
	switch evt.Action {
	case trb.EvtSongStarted, trb.EvtSongEnded:
		var song trb.SongData
		if err := unmarshalData(evt, &song); err == nil && song.Title != "" {
			return fmt.Sprintf("%q", song.Title)
		}
	case trb.EvtQueueUpdated:
		var data trb.QueueUpdatedData
		if err := unmarshalData(evt, &data); err == nil {
			return fmt.Sprintf("%d queued", len(data.Queue))
		}
	case trb.EvtPlayerError:
		var data trb.ErrorData
		if err := unmarshalData(evt, &data); err == nil && data.ErrorMessage != "" {
			return fmt.Sprintf("%s: %s", data.ErrorType, data.ErrorMessage)
		}
	}
	return ""
}

func unmarshalData(evt trb.Message, out any) error {
	if len(evt.Data) == 0 {
		return errors.New("no data")
	}
	return json.Unmarshal(evt.Data, out)
}

func formatSong(song trb.SongData) string {
	parts := []string{fmt.Sprintf("%q", song.Title)}
	if song.Duration > 0 {
		parts = append(parts, formatDuration(song.Duration))
	}
	if song.RequesterName != "" {
		parts = append(parts, "for "+song.RequesterName)
	}
	return strings.Join(parts, "  ")
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "live"
	}
	d := time.Duration(seconds) * time.Second
	if d >= time.Hour {
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
