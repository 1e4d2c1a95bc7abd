package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultFaceServiceURL = "http://localhost:8000"
	faceEmbedPath         = "/embed/face"
	faceServiceTimeout    = 60 * time.Second
	// Error bodies are only echoed for diagnostics.
	maxErrorBody = 4 << 10
)

// FaceClient talks to the InsightFace embedding service, which answers a
// multipart image upload with every detected face and its embedding.
type FaceClient struct {
	baseURL string
	client  *http.Client
}

// NewFaceClient returns a client for the service at baseURL, or at
// localhost:8000 when baseURL is empty.
func NewFaceClient(baseURL string) *FaceClient {
	if baseURL == "" {
		baseURL = defaultFaceServiceURL
	}
	return &FaceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: faceServiceTimeout},
	}
}

// FaceDetection is one face in a service response.
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // x1, y1, x2, y2
	DetScore  float64   `json:"det_score"`
}

type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// imageForm wraps the picture in a single-file multipart body.
func imageForm(data []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	header.Set("Content-Type", DetectMIMEType(data))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("creating form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("writing image to form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return body, mw.FormDataContentType(), nil
}

func (c *FaceClient) embed(ctx context.Context, data []byte) (*FaceResponse, error) {
	body, contentType, err := imageForm(data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+faceEmbedPath, body)
	if err != nil {
		return nil, fmt.Errorf("building face service request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling face service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("face service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out FaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding face service response: %w", err)
	}
	return &out, nil
}

// Detect implements Recognizer. Faces the service could not embed are skipped.
func (c *FaceClient) Detect(ctx context.Context, imageData []byte) ([]Face, error) {
	resp, err := c.embed(ctx, imageData)
	if err != nil {
		return nil, err
	}

	faces := make([]Face, 0, len(resp.Faces))
	for _, d := range resp.Faces {
		if len(d.Embedding) == 0 {
			continue
		}
		faces = append(faces, Face{
			Box:      bboxToRect(d.BBox),
			Encoding: d.Embedding,
			Score:    d.DetScore,
		})
	}
	return faces, nil
}

func bboxToRect(bbox []float64) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3]))
}
