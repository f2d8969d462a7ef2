// Package audio renders dialogue segments through a text to speech provider
// and stores the concatenated episode track.
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"research-podcaster/internal/config"
	"research-podcaster/internal/models"
	"research-podcaster/internal/retry"
)

// ErrSynthesisFailed is returned when any segment could not be rendered.
// Nothing is stored in that case.
var ErrSynthesisFailed = errors.New("synthesis failed")

// Track is a stored episode audio file.
type Track struct {
	URL             string
	Key             string
	DurationSeconds int
	SizeBytes       int64
}

// Synthesizer renders segments concurrently on a shared worker pool.
type Synthesizer struct {
	tts         TTS
	storage     Storage
	pool        *ants.Pool
	policy      retry.Policy
	intro       []byte
	outro       []byte
	bitrateKbps int
}

// NewSynthesizer loads the intro and outro bumpers once. Empty paths mean no
// bumper.
func NewSynthesizer(tts TTS, storage Storage, pool *ants.Pool, policy retry.Policy, settings config.Audio) (*Synthesizer, error) {
	intro, err := readBumper(settings.IntroPath)
	if err != nil {
		return nil, err
	}
	outro, err := readBumper(settings.OutroPath)
	if err != nil {
		return nil, err
	}
	bitrate := settings.BitrateKbps
	if bitrate <= 0 {
		bitrate = 128
	}
	return &Synthesizer{
		tts:         tts,
		storage:     storage,
		pool:        pool,
		policy:      policy,
		intro:       intro,
		outro:       outro,
		bitrateKbps: bitrate,
	}, nil
}

func readBumper(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bumper %s: %w", path, err)
	}
	return data, nil
}

// Synthesize renders every segment, concatenates intro, segments in script
// order and outro, and stores the result as <name>.mp3. The first failing
// segment cancels the rest.
func (s *Synthesizer) Synthesize(ctx context.Context, name string, segments []models.Segment) (*Track, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments", ErrSynthesisFailed)
	}
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	rendered := make([][]byte, len(segments))
	for i := range segments {
		i, seg := i, segments[i]
		text := CleanText(seg.Text, seg.Speaker)
		if text == "" {
			continue
		}
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			var data []byte
			_, err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
				var err error
				data, err = s.tts.Synthesize(ctx, text, seg.VoiceID)
				return err
			})
			if err != nil {
				fail(fmt.Errorf("segment %d (%s): %w", seg.Index, seg.Role, err))
				return
			}
			rendered[i] = data
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit segment %d: %w", seg.Index, err))
			break
		}
	}
	wg.Wait()

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrSynthesisFailed, firstErr)
	}

	size := len(s.intro) + len(s.outro)
	for _, r := range rendered {
		size += len(r)
	}
	if size == len(s.intro)+len(s.outro) {
		return nil, fmt.Errorf("%w: no speakable text", ErrSynthesisFailed)
	}
	track := make([]byte, 0, size)
	track = append(track, s.intro...)
	for _, r := range rendered {
		track = append(track, r...)
	}
	track = append(track, s.outro...)

	key := name + ".mp3"
	url, err := s.storage.Put(ctx, key, track)
	if err != nil {
		return nil, fmt.Errorf("%w: store track: %w", ErrSynthesisFailed, err)
	}
	duration := s.duration(len(track))
	log.Info().Str("key", key).Int("segments", len(segments)).Int("bytes", len(track)).
		Int("duration_seconds", duration).Int64("latency_ms", time.Since(start).Milliseconds()).Msg("Episode audio stored")
	return &Track{URL: url, Key: key, DurationSeconds: duration, SizeBytes: int64(len(track))}, nil
}

// duration assumes constant bitrate MP3.
func (s *Synthesizer) duration(bytes int) int {
	return int(math.Round(float64(bytes) * 8 / float64(s.bitrateKbps*1000)))
}
