package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"research-podcaster/internal/models"
)

const timeLayout = "2006-01-02 15:04"

var (
	jobColumns     = []column{left("ID"), left("Topic"), left("Category"), left("Status"), left("Filename"), left("Created")}
	episodeColumns = []column{left("Filename"), left("Title"), left("Category"), right("Duration"), left("In feed"), left("Promoted")}
	detailColumns  = []column{left("Field"), left("Value")}
)

func buildJobRows(jobs []models.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID,
			truncate(j.Topic, 40),
			j.Category,
			string(j.Status),
			deref(j.CanonicalFilename),
			j.CreatedAt.Local().Format(timeLayout),
		})
	}
	return rows
}

func buildEpisodeRows(episodes []models.Episode) [][]string {
	rows := make([][]string, 0, len(episodes))
	for _, e := range episodes {
		feed := "no"
		if e.SubmittedToFeed {
			feed = "yes"
		}
		rows = append(rows, []string{
			e.CanonicalFilename,
			truncate(e.Title, 40),
			e.Category,
			formatDuration(e.DurationSeconds),
			feed,
			e.PromotedAt.Local().Format(timeLayout),
		})
	}
	return rows
}

// buildJobDetail lists one job as field/value pairs.
func buildJobDetail(j *models.Job) [][]string {
	rows := [][]string{
		{"ID", j.ID},
		{"Topic", j.Topic},
		{"Category", j.Category},
		{"Expertise", j.ExpertiseLevel},
		{"Duration hint", strconv.Itoa(j.DurationHint) + " min"},
		{"Voices", fmt.Sprintf("%s / %s", j.Voices.Host.Name, j.Voices.Expert.Name)},
		{"Status", string(j.Status)},
	}
	if j.CanonicalFilename != nil {
		rows = append(rows, []string{"Filename", *j.CanonicalFilename})
	}
	if j.ResearchContext != nil {
		rows = append(rows, []string{"Sources", strconv.Itoa(len(j.ResearchContext.Sources))})
	}
	if j.Result != nil {
		rows = append(rows, []string{"Title", j.Result.Title})
		if j.Result.AudioURL != "" {
			rows = append(rows, []string{"Audio", j.Result.AudioURL})
		}
		rows = append(rows, []string{"References", strconv.Itoa(len(j.Result.References))})
	}
	if j.ErrorKind != nil {
		rows = append(rows, []string{"Error", fmt.Sprintf("%s: %s", *j.ErrorKind, deref(j.Error))})
	}
	rows = append(rows,
		[]string{"Created", j.CreatedAt.Local().Format(timeLayout)},
		[]string{"Updated", j.UpdatedAt.Local().Format(timeLayout)},
	)
	return rows
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
