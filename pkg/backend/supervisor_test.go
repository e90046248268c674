package backend

import (
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-objectd/pkg/logging"
	"github.com/dd0wney/cluso-objectd/pkg/model"
	"github.com/dd0wney/cluso-objectd/pkg/transfer"
)

type proc struct {
	exited  bool
	signals []os.Signal
}

func (p *proc) Pid() int                   { return 4242 }
func (p *proc) Exited() (bool, error)      { return p.exited, nil }
func (p *proc) Signal(sig os.Signal) error { p.signals = append(p.signals, sig); return nil }

type launcher struct {
	args  [][]string
	procs []*proc
}

func (l *launcher) Launch(name string, args []string) (transfer.Process, error) {
	l.args = append(l.args, args)
	p := &proc{}
	l.procs = append(l.procs, p)
	return p, nil
}

type dumps struct {
	epochs []int64
	err    error
}

func (d *dumps) AnnounceDump(epoch int64) error {
	d.epochs = append(d.epochs, epoch)
	return d.err
}

type fixture struct {
	launcher *launcher
	procs    *transfer.Supervisor
	store    *model.Store
	dumps    *dumps
	sup      *Supervisor
}

func newFixture(enabled bool) *fixture {
	f := &fixture{launcher: &launcher{}, dumps: &dumps{}}
	f.procs = transfer.NewSupervisor(f.launcher, transfer.Names{Backend: "pbe"}, logging.NewNopLogger(), nil)
	f.store = model.NewStore(model.KeepRepository, logging.NewNopLogger())
	f.sup = New(f.procs, f.store, f.dumps, Options{Enabled: enabled, Path: "/repo/pbe.db", Daemon: true}, logging.NewNopLogger())
	return f
}

func TestNoopUnlessEnabledAndCoordinator(t *testing.T) {
	f := newFixture(false)
	f.sup.Check(true, 1)
	assert.Empty(t, f.launcher.args)

	f = newFixture(true)
	f.sup.Check(false, 1)
	assert.Empty(t, f.launcher.args)
}

func TestStartsExporterAndAnnouncesDump(t *testing.T) {
	f := newFixture(true)

	f.sup.Check(true, 3)
	require.Len(t, f.launcher.args, 1)
	assert.Equal(t, []string{"--daemon", "/repo/pbe.db"}, f.launcher.args[0])
	assert.Equal(t, []int64{3}, f.dumps.epochs)

	// Running: nothing more to do
	f.sup.Check(true, 3)
	assert.Len(t, f.launcher.args, 1)
}

func TestAnnounceFailureKeepsExporter(t *testing.T) {
	f := newFixture(true)
	f.dumps.err = errors.New("not yet")

	f.sup.Check(true, 3)
	assert.True(t, f.procs.Alive(transfer.KindBackend))
}

func TestStopsExporterOnceWhenModeChanges(t *testing.T) {
	f := newFixture(true)
	f.sup.Check(true, 1)

	f.store.SetRepositoryInitMode(model.InitFromFile)
	f.sup.Check(true, 1)
	f.sup.Check(true, 1)
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, f.launcher.procs[0].signals)

	f.launcher.procs[0].exited = true
	f.procs.Reap()
	f.sup.Check(true, 1)
	assert.False(t, f.procs.Alive(transfer.KindBackend))

	// Not durable anymore: stays down
	f.sup.Check(true, 1)
	assert.Len(t, f.launcher.args, 1)
}

func TestUnexpectedExitRestartsOnLaterTick(t *testing.T) {
	f := newFixture(true)
	f.sup.Check(true, 1)

	f.launcher.procs[0].exited = true
	f.procs.Reap()

	f.sup.Check(true, 2)
	assert.Len(t, f.launcher.args, 1, "no restart in the tick that saw the exit")

	f.sup.Check(true, 2)
	assert.Len(t, f.launcher.args, 2)
	assert.Equal(t, []int64{1, 2}, f.dumps.epochs)
}
