package worker

import (
	"context"
	"testing"

	"github.com/bobarin/podclip/internal/captions"
	"github.com/bobarin/podclip/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestBuildCaptionsSkipsWhenDisabled(t *testing.T) {
	p := &Pipeline{captions: captions.New("unused", false, nil)}

	chunks := p.buildCaptions(context.Background(), models.Job{}.ID, "/tmp/clip.m4a", models.Request{CaptionsEnabled: false})

	assert.Nil(t, chunks)
}

