package application

import (
	"testing"
	"time"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/stretchr/testify/assert"
)

func TestRenderer_Render(t *testing.T) {
	r := NewRenderer("", "", time.UTC)
	at := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	alex := job.Recipient{Phone: "+255700000001", Name: "Alex"}

	cases := []struct {
		name     string
		template string
		want     string
	}{
		{"name", "Hi {name}, your balance is due", "Hi Alex, your balance is due"},
		{"all tokens", "{name} {phone} {date} {time}", "Alex +255700000001 05/03/2024 14:07"},
		{"case insensitive", "Hi {NAME} / {Phone}", "Hi Alex / +255700000001"},
		{"repeated", "{name}{name}", "AlexAlex"},
		{"unknown kept", "Hi {nickname} {name}", "Hi {nickname} Alex"},
		{"unbalanced kept", "Hi {name", "Hi {name"},
		{"no braces", "Plain text", "Plain text"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, r.Render(tc.template, alex, at))
		})
	}
}

func TestRenderer_SinglePass(t *testing.T) {
	r := NewRenderer("", "", time.UTC)
	tricky := job.Recipient{Phone: "1", Name: "{phone}"}

	assert.Equal(t, "Hi {phone}", r.Render("Hi {name}", tricky, time.Now()))
}

func TestRenderer_EmptyName(t *testing.T) {
	r := NewRenderer("", "", time.UTC)
	assert.Equal(t, "Hi , welcome", r.Render("Hi {name}, welcome", job.Recipient{Phone: "1"}, time.Now()))
}

func TestRenderer_RenderForJobUsesTimezone(t *testing.T) {
	r := NewRenderer("2006-01-02", "15:04", time.UTC)
	j := &job.ScheduledJob{Template: "{date} {time}", Timezone: "Africa/Dar_es_Salaam"}
	now := time.Date(2024, 3, 5, 22, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-03-06 01:30", r.RenderForJob(j, job.Recipient{}, now))

	j.Timezone = "Not/AZone"
	assert.Equal(t, "2024-03-05 22:30", r.RenderForJob(j, job.Recipient{}, now))
}
