package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/splatterlab/splatter"
)

// ReadStats implements splatter.Device with a synchronous counters copy:
// the queue is flushed, the counters block is copied into a mappable
// staging buffer, and the host blocks on the map. Diagnostics only; callers
// sample it sparingly.
func (d *Device) ReadStats() (splatter.DeviceStats, error) {
	data, err := d.readBuffer("stats readback", d.countersBuf, d.readbackBuf, countersSize)
	if err != nil {
		return splatter.DeviceStats{}, err
	}
	free := int(int32(binary.LittleEndian.Uint32(data[0:])))
	if free < 0 {
		free = 0
	}
	alive := int(binary.LittleEndian.Uint32(data[4:]))
	return splatter.DeviceStats{Alive: alive, Free: free}, nil
}

// ReadColor copies the color target back to the host. Expensive; intended
// for snapshots and tests, not the frame loop.
func (d *Device) ReadColor(dst []float32) error {
	return d.readTarget(d.colorBuf, uint64(d.width)*uint64(d.height)*16, dst)
}

// ReadDepth copies the depth target back to the host.
func (d *Device) ReadDepth(dst []float32) error {
	return d.readTarget(d.depthBuf, uint64(d.width)*uint64(d.height)*4, dst)
}

func (d *Device) readTarget(src *wgpu.Buffer, size uint64, dst []float32) error {
	staging, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "TargetReadbackBuf",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return lost("target readback", err)
	}
	defer staging.Release()

	data, err := d.readBuffer("target readback", src, staging, size)
	if err != nil {
		return err
	}
	n := len(dst)
	if max := int(size / 4); n > max {
		n = max
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return nil
}

// readBuffer copies size bytes of src into the staging buffer and blocks
// until the map completes.
func (d *Device) readBuffer(op string, src, staging *wgpu.Buffer, size uint64) ([]byte, error) {
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, lost(op, err)
	}
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, lost(op, err)
	}
	d.queue.Submit(cmd)

	status := wgpu.BufferMapAsyncStatusUnknown
	done := false
	staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	for !done {
		d.device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, lost(op, fmt.Errorf("map status %v", status))
	}
	defer staging.Unmap()

	mapped := staging.GetMappedRange(0, uint(size))
	data := make([]byte, len(mapped))
	copy(data, mapped)
	return data, nil
}
