package phash

import (
	"fmt"
	"image"
)

// TaskComputeHash is the only task the compute worker understands.
const TaskComputeHash = "computeImageHash"

// PixelBuffer is decoded pixel data as produced by a rasterizer: a tightly
// packed RGBA byte buffer.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// Image wraps the buffer as an image.Image without copying.
func (p PixelBuffer) Image() (*image.RGBA, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("phash: invalid buffer dimensions %dx%d", p.Width, p.Height)
	}
	if len(p.Pix) != p.Width*p.Height*4 {
		return nil, fmt.Errorf("phash: buffer length %d does not match %dx%d RGBA", len(p.Pix), p.Width, p.Height)
	}
	return &image.RGBA{
		Pix:    p.Pix,
		Stride: p.Width * 4,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}, nil
}

// Request is one unit of offloaded hash work.
type Request struct {
	ID      string
	Task    string
	Data    PixelBuffer
	Options Options
}

// Response carries the outcome for the request with the matching ID.
type Response struct {
	ID      string
	Success bool
	Result  string
	Error   string
}

// Worker computes hashes off the coordinating goroutine, communicating
// exclusively via message passing so callers never block on compute.
type Worker struct {
	requests  chan Request
	responses chan Response
}

// NewWorker starts a worker with the given queue depth.
func NewWorker(queueDepth int) *Worker {
	if queueDepth < 1 {
		queueDepth = 1
	}
	w := &Worker{
		requests:  make(chan Request, queueDepth),
		responses: make(chan Response, queueDepth),
	}
	go w.run()
	return w
}

// Submit enqueues a request. It blocks when the queue is full.
func (w *Worker) Submit(req Request) {
	w.requests <- req
}

// Responses returns the channel on which results are delivered. The channel
// is closed after Close drains the queue.
func (w *Worker) Responses() <-chan Response {
	return w.responses
}

// Close stops accepting requests; queued work still completes.
func (w *Worker) Close() {
	close(w.requests)
}

func (w *Worker) run() {
	defer close(w.responses)
	for req := range w.requests {
		w.responses <- handle(req)
	}
}

func handle(req Request) Response {
	if req.Task != TaskComputeHash {
		return Response{ID: req.ID, Error: fmt.Sprintf("unknown task %q", req.Task)}
	}

	img, err := req.Data.Image()
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}

	result, err := Hash(img, req.Options)
	if err != nil {
		return Response{ID: req.ID, Error: err.Error()}
	}
	return Response{ID: req.ID, Success: true, Result: result}
}
