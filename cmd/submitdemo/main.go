// Command submitdemo runs a frame loop through the submit scheduler on the
// noop HAL backend and prints the resulting counters.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/submit"
)

func main() {
	var (
		frames   = flag.Int("frames", 120, "number of frames to run")
		passes   = flag.Int("passes", 8, "render passes recorded per frame")
		uploads  = flag.Int("uploads", 4, "copy units submitted per frame by the upload goroutine")
		capacity = flag.Int("capacity", 64, "command unit pool capacity")
		buffers  = flag.Int("buffers", 2, "frames in flight")
		workers  = flag.Int("workers", 0, "recording goroutines (0 = GOMAXPROCS)")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	submit.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	device, queue, cleanup, err := openNoop()
	if err != nil {
		log.Fatalf("open noop device: %v", err)
	}
	defer cleanup()

	s, err := submit.New(device, queue,
		submit.WithCapacity(*capacity),
		submit.WithBufferCount(*buffers),
		submit.WithWorkers(*workers),
	)
	if err != nil {
		log.Fatalf("create submitter: %v", err)
	}
	defer s.Close()

	start := time.Now()
	if err := run(s, *frames, *passes, *uploads); err != nil {
		log.Fatalf("frame loop: %v", err)
	}
	elapsed := time.Since(start)

	st := s.Stats()
	fmt.Printf("frames:      %d in %v (%.1f fps)\n", *frames, elapsed.Round(time.Millisecond),
		float64(*frames)/elapsed.Seconds())
	fmt.Printf("allocations: %d (reused %d, reinit %d, exhausted %d)\n",
		st.Allocations, st.Reused, st.Reinits, st.Exhausted)
	for _, list := range submit.ListTypes() {
		q := st.Queues[list]
		fmt.Printf("%-8s     executed %d, disposed %d, swaps %d, fence %d\n",
			list, q.Executed, q.Disposed, q.Swaps, q.Fence)
	}
}

// run records passes and uploads for every frame and swaps buffers at the
// end of each.
func run(s *submit.Submitter, frames, passes, uploads int) error {
	ctx := context.Background()
	lists := []submit.ListType{submit.ListDirect, submit.ListCompute, submit.ListBundle}

	for frame := 0; frame < frames; frame++ {
		uploadErr := make(chan error, 1)
		go func() { uploadErr <- upload(ctx, s, frame, uploads) }()

		ps := make([]submit.Pass, passes)
		for i := range ps {
			ps[i] = submit.Pass{
				Name:   fmt.Sprintf("f%d-pass%d", frame, i),
				List:   lists[i%len(lists)],
				Record: recordPass,
			}
		}
		if _, err := s.Record(ctx, ps...); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		if err := <-uploadErr; err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}

		next := (s.CurrentBuffer() + 1) % s.BufferCount()
		if err := s.SwapBuffer(next); err != nil {
			return fmt.Errorf("frame %d: swap: %w", frame, err)
		}
	}
	return s.WaitForCommandsCompletion()
}

// upload submits copy units one at a time, waiting for pool space.
func upload(ctx context.Context, s *submit.Submitter, frame, n int) error {
	for i := 0; i < n; i++ {
		h, err := s.AcquireWait(ctx, submit.ListCopy, fmt.Sprintf("f%d-upload%d", frame, i))
		if err != nil {
			return err
		}
		if err := h.SoftReset(); err != nil {
			return err
		}
		if err := h.FlagReady(nil); err != nil {
			return err
		}
	}
	return nil
}

// recordPass stands in for real render pass recording.
func recordPass(enc hal.CommandEncoder) error {
	if enc == nil {
		return fmt.Errorf("no encoder")
	}
	return nil
}

func openNoop() (hal.Device, hal.Queue, func(), error) {
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		return nil, nil, nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, nil, fmt.Errorf("no noop adapter")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, err
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup, nil
}
