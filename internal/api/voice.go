package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ai-voice-chat/backend/internal/service"
	"ai-voice-chat/backend/pkg/audio"
	"ai-voice-chat/backend/pkg/errors"
)

// VoiceController handles transcription and speech synthesis
type VoiceController struct {
	voice        *service.VoiceService
	maxAudioSize int64
}

// NewVoiceController creates a new voice controller. Uploads larger than
// maxAudioSize are rejected before they reach the transcriber.
func NewVoiceController(voice *service.VoiceService, maxAudioSize int64) *VoiceController {
	return &VoiceController{
		voice:        voice,
		maxAudioSize: maxAudioSize,
	}
}

// TranscribeResponse is returned by POST /api/transcribe
type TranscribeResponse struct {
	Success  bool   `json:"success"`
	Text     string `json:"text"`
	Fallback bool   `json:"fallback,omitempty"`
}

// SynthesizeRequest is the body of POST /api/synthesize
type SynthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// RegisterRoutes registers the routes for the voice controller
func (c *VoiceController) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/transcribe", c.Transcribe)
	router.POST("/synthesize", c.Synthesize)
}

// Transcribe accepts a multipart "audio" file or a raw audio body
func (c *VoiceController) Transcribe(ctx *gin.Context) {
	data, contentType, err := c.readAudio(ctx)
	if err != nil {
		_ = ctx.Error(err)
		return
	}

	enc, err := encodingFor(ctx, contentType)
	if err != nil {
		_ = ctx.Error(err)
		return
	}

	sampleRate := 0
	if raw := formOrQuery(ctx, "sampleRate"); raw != "" {
		sampleRate, err = strconv.Atoi(raw)
		if err != nil || sampleRate < 0 {
			_ = ctx.Error(errors.InvalidInput("sampleRate must be a positive integer"))
			return
		}
	}

	transcript, err := c.voice.Transcribe(ctx.Request.Context(), data, enc, sampleRate)
	if err != nil {
		_ = ctx.Error(err)
		return
	}

	ctx.JSON(http.StatusOK, TranscribeResponse{
		Success:  true,
		Text:     transcript.Text,
		Fallback: transcript.Fallback,
	})
}

// Synthesize returns spoken audio for the given text. A 503 tells the
// client to use its own speech synthesis instead.
func (c *VoiceController) Synthesize(ctx *gin.Context) {
	var req SynthesizeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		_ = ctx.Error(errors.InvalidInput("Invalid request body"))
		return
	}

	speech, err := c.voice.Synthesize(ctx.Request.Context(), req.Text, req.Voice)
	if err != nil {
		_ = ctx.Error(err)
		return
	}

	ctx.Data(http.StatusOK, speech.ContentType, speech.Audio)
}

func (c *VoiceController) readAudio(ctx *gin.Context) ([]byte, string, error) {
	if strings.HasPrefix(ctx.ContentType(), "multipart/") {
		file, header, err := ctx.Request.FormFile("audio")
		if err != nil {
			return nil, "", errors.InvalidInput("No audio file provided")
		}
		defer file.Close()

		data, err := c.readLimited(file)
		return data, header.Header.Get("Content-Type"), err
	}

	data, err := c.readLimited(ctx.Request.Body)
	return data, ctx.ContentType(), err
}

func (c *VoiceController) readLimited(r io.Reader) ([]byte, error) {
	if c.maxAudioSize > 0 {
		// one extra byte lets the service report the size violation
		r = io.LimitReader(r, c.maxAudioSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.InvalidInput("Could not read audio upload")
	}
	return data, nil
}

// encodingFor prefers an explicit encoding field and otherwise trusts the
// upload's content type, leaving unrecognised types to byte sniffing.
func encodingFor(ctx *gin.Context, contentType string) (audio.Encoding, error) {
	if explicit := formOrQuery(ctx, "encoding"); explicit != "" {
		enc, err := audio.ParseEncoding(explicit)
		if err != nil {
			return audio.EncodingUnknown, errors.InvalidInput(err.Error())
		}
		return enc, nil
	}

	enc, err := audio.ParseEncoding(contentType)
	if err != nil {
		return audio.EncodingUnknown, nil
	}
	return enc, nil
}

func formOrQuery(ctx *gin.Context, key string) string {
	if v := ctx.PostForm(key); v != "" {
		return v
	}
	return ctx.Query(key)
}
