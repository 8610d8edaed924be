package scanning

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"image/png"
	"time"

	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockLabelModel struct {
	reply    string
	err      error
	label    []byte
	deadline time.Time
	calls    int
}

func (m *mockLabelModel) transcribe(ctx context.Context, label []byte) (string, error) {
	m.calls++
	m.label = label
	m.deadline, _ = ctx.Deadline()
	return m.reply, m.err
}

var _ = Describe("readLabel", func() {
	var (
		model       *mockLabelModel
		imageData   []byte
		contentType string
		data        *LabelData
		err         error
	)

	BeforeEach(func() {
		model = &mockLabelModel{reply: `{"name": "Granola", "calories": 190, "protein": 4, "carbs": 29, "fat": 7, "confidence": 80}`}

		var buf bytes.Buffer
		Expect(jpeg.Encode(&buf, solidImage(20, 10), nil)).To(Succeed())
		imageData = buf.Bytes()
		contentType = "image/jpeg"
	})

	JustBeforeEach(func() {
		data, err = readLabel(context.Background(), model, time.Minute, imageData, contentType)
	})

	It("hands the model a PNG of the photo within the budget", func() {
		Expect(err).NotTo(HaveOccurred())
		img, decodeErr := png.Decode(bytes.NewReader(model.label))
		Expect(decodeErr).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(20))
		Expect(model.deadline).To(BeTemporally("~", time.Now().Add(time.Minute), 5*time.Second))
	})

	It("returns the transcribed label", func() {
		Expect(data.Name).To(Equal("Granola"))
		Expect(data.Calories).To(Equal(190.0))
		Expect(data.Confidence).To(Equal(80))
	})

	When("the model fails", func() {
		BeforeEach(func() {
			model.err = errors.New("quota exceeded")
		})

		It("returns the model error unchanged", func() {
			Expect(err).To(MatchError("quota exceeded"))
			Expect(data).To(BeNil())
		})
	})

	When("the reply is not label JSON", func() {
		BeforeEach(func() {
			model.reply = "The photo is too blurry."
		})

		It("returns a parse error", func() {
			Expect(err).To(MatchError(ContainSubstring("parsing label data")))
		})
	})

	When("the photo cannot be decoded", func() {
		BeforeEach(func() {
			imageData = []byte("not an image")
		})

		It("never asks the model", func() {
			Expect(err).To(HaveOccurred())
			Expect(model.calls).To(BeZero())
		})
	})
})

var _ = Describe("candidateText", func() {
	var (
		resp *genai.GenerateContentResponse
		text string
		err  error
	)

	JustBeforeEach(func() {
		text, err = candidateText(resp)
	})

	When("the first candidate has several parts", func() {
		BeforeEach(func() {
			resp = &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{
					genai.Text(`{"name": "Oat`),
					genai.Blob{MIMEType: "image/png"},
					genai.Text(` Bar"}`),
				}},
			}}}
		})

		It("joins only the text parts", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal(`{"name": "Oat Bar"}`))
		})
	})

	When("there are no candidates", func() {
		BeforeEach(func() {
			resp = &genai.GenerateContentResponse{}
		})

		It("fails", func() {
			Expect(err).To(MatchError(ContainSubstring("no response")))
		})
	})

	When("the candidate carries no text", func() {
		BeforeEach(func() {
			resp = &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}}},
			}}}
		})

		It("fails", func() {
			Expect(err).To(MatchError(ContainSubstring("no label text")))
		})
	})
})
