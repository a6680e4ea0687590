package agent

import (
	"context"
	"testing"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/moby/tapkit/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) (*worker, *fakeSwitch, *stubReporter) {
	d, sw := newTestDriver(t, false)
	stub := &stubReporter{statuses: make(map[statusKey]api.Status)}
	reporter := newStatusReporter(context.Background(), stub, clock.NewClock())
	t.Cleanup(func() { reporter.Close() })
	return newWorker("host-a", d, reporter), sw, stub
}

func waitForStatus(t *testing.T, stub *stubReporter, key statusKey, want api.Status) {
	require.Eventually(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		return stub.statuses[key] == want
	}, 10*time.Second, 10*time.Millisecond)
}

func TestWorkerReportsStatus(t *testing.T) {
	ctx := context.Background()
	w, sw, stub := newTestWorker(t)

	for _, testcase := range []struct {
		msg  *api.CastMessage
		key  statusKey
		want api.Status
	}{
		{
			msg:  serviceCast("svc", "dst", 3900),
			key:  statusKey{api.KindTapService, "svc"},
			want: api.StatusActive,
		},
		{
			msg:  flowCast(api.MethodCreateTapFlow, "f1", "src", 3900, api.DirectionBoth),
			key:  statusKey{api.KindTapFlow, "f1"},
			want: api.StatusActive,
		},
		{
			msg:  flowCast(api.MethodCreateTapFlow, "f2", "missing", 3900, api.DirectionIn),
			key:  statusKey{api.KindTapFlow, "f2"},
			want: api.StatusError,
		},
		{
			msg:  flowCast(api.MethodDeleteTapFlow, "f1", "src", 3900, api.DirectionBoth),
			key:  statusKey{api.KindTapFlow, "f1"},
			want: api.StatusInactive,
		},
		{
			msg:  flowCast(api.MethodDeleteTapFlow, "f3", "missing", 3900, api.DirectionIn),
			key:  statusKey{api.KindTapFlow, "f3"},
			want: api.StatusPendingDelete,
		},
	} {
		w.handle(ctx, testcase.msg)
		waitForStatus(t, stub, testcase.key, testcase.want)
	}
	assert.NotEmpty(t, sw.take())
}

func TestWorkerFanoutDelete(t *testing.T) {
	ctx := context.Background()
	w, sw, stub := newTestWorker(t)

	msg := serviceCast("svc", "dst", 3900)
	msg.Method = api.MethodDeleteTapService
	msg.Host = "host-b"
	w.handle(ctx, msg)

	waitForStatus(t, stub, statusKey{api.KindTapService, "svc"}, api.StatusInactive)
	assert.NotEmpty(t, sw.take())
}

func TestWorkerIgnores(t *testing.T) {
	ctx := context.Background()
	w, sw, stub := newTestWorker(t)

	other := serviceCast("svc", "dst", 3900)
	other.Host = "host-b"

	direct := flowCast(api.MethodCreateTapFlow, "f1", "src", 3900, api.DirectionIn)
	direct.Port.VNICType = api.VNICDirect

	unknown := serviceCast("svc", "dst", 3900)
	unknown.Method = "reboot"

	empty := &api.CastMessage{Method: api.MethodCreateTapFlow, Host: "host-a"}

	// a port without a binding host is not programmed anywhere
	unbound := serviceCast("svc", "dst", 3900)
	unbound.Host = ""
	unbound.Port.Host = ""

	for _, msg := range []*api.CastMessage{other, direct, unknown, empty, unbound} {
		w.handle(ctx, msg)
	}

	assert.Empty(t, sw.take())
	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Empty(t, stub.statuses)
}
