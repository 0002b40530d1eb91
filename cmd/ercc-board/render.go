package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/client/cache"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/domain/triage"
	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
)

const clearScreen = "\033[H\033[2J"

func render(w io.Writer, sync *cache.Synchronizer, profile *auth.Profile, focus *uuid.UUID) {
	fmt.Fprint(w, clearScreen)
	if profile != nil {
		fmt.Fprintf(w, "%s (%s)  %s\n\n", profile.Name, profile.Role, time.Now().Format("15:04:05"))
	}

	if st := sync.Stats(); st != nil {
		fmt.Fprintf(w, "Patients %d  critical %d  pending triage %d | Beds %d/%d | Alerts unread %d critical %d\n\n",
			st.Patients.Total, st.Patients.Critical, st.Patients.PendingTriage,
			st.Beds.Occupied, st.Beds.Total, st.Alerts.Unread, st.Alerts.Critical)
	}

	renderPatients(w, sync.Patients(), sync.Meta(cache.KeyPatients))

	if alerts := sync.Alerts(); len(alerts) > 0 {
		fmt.Fprintln(w, "\nAlerts")
		for _, a := range alerts {
			fmt.Fprintf(w, "  [%s] %s  %s\n", a.Priority, a.Title, a.CreatedAt.Local().Format("15:04"))
		}
	}

	if focus != nil {
		fmt.Fprintln(w)
		renderTimeline(w, sync.Timeline(*focus), sync.Meta(cache.TimelineKey(*focus)))
	}
}

func renderPatients(w io.Writer, patients []triage.Patient, meta cache.Meta) {
	rows := append([]triage.Patient(nil), patients...)
	sort.SliceStable(rows, func(i, j int) bool {
		return priorityOf(rows[i]) < priorityOf(rows[j])
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tPATIENT\tCOMPLAINT\tSTATUS\tBED\tID")
	for _, p := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			priorityLabel(p), p.Name, p.Complaint, p.Status, lo.FromPtrOr(p.BedNumber, "-"), p.ID)
	}
	tw.Flush()
	fmt.Fprintln(w, metaLine(meta))
}

func renderTimeline(w io.Writer, entries []cache.Entry, meta cache.Meta) {
	fmt.Fprintln(w, "Triage timeline")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		t := e.Transition
		from := "-"
		if t.FromPriority != nil {
			from = fmt.Sprint(*t.FromPriority)
		}
		mark := lo.Ternary(t.IsApplied, "applied", "advisory")
		if e.Temp() {
			mark = "pending"
		}
		fmt.Fprintf(tw, "  %s\t%s -> %d %s\t%s\t%s\n",
			t.CreatedAt.Local().Format("15:04:05"), from, t.ToPriority, t.PriorityLabel, mark, t.Reasoning)
	}
	tw.Flush()
	fmt.Fprintln(w, metaLine(meta))
}

func metaLine(m cache.Meta) string {
	line := fmt.Sprintf("  (%s", m.State)
	if !m.UpdatedAt.IsZero() {
		line += ", updated " + m.UpdatedAt.Local().Format("15:04:05")
	}
	if m.Err != nil {
		line += ", last refresh failed: " + m.Err.Error()
	}
	return line + ")"
}

func priorityOf(p triage.Patient) int {
	return lo.FromPtrOr(p.Priority, 99)
}

func priorityLabel(p triage.Patient) string {
	if p.Priority == nil {
		return "untriaged"
	}
	return fmt.Sprintf("%d %s", *p.Priority, lo.FromPtrOr(p.PriorityLabel, ""))
}
