package main

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/brokerfleet/pkg/api"
	"github.com/cuemby/brokerfleet/pkg/offer"
	"github.com/cuemby/brokerfleet/pkg/plan"
	"github.com/cuemby/brokerfleet/pkg/storage"
	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type nopDriver struct{}

func (nopDriver) RestartTasks([]*types.TaskInfo)    {}
func (nopDriver) RescheduleTasks([]*types.TaskInfo) {}

func startAPI(t *testing.T) (string, *plan.Plan) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	p, err := plan.Build(plan.Config{TargetConfigName: "v3", BrokerCount: 2}, plan.Deps{
		State:    store,
		Provider: offer.NewProvider(offer.BrokerResources{CPUs: 1, MemMB: 512, DiskMB: 100, Port: 9092}),
		Driver:   nopDriver{},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer(planFunc(func() *plan.Plan { return p }), store).Handler())
	t.Cleanup(srv.Close)
	return srv.URL, p
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPlanStatusText(t *testing.T) {
	addr, _ := startAPI(t)

	out, err := runCLI(t, "plan", "status", "--api", addr, "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Plan:   PENDING (1 phases)")
	assert.Contains(t, out, "Phase:  Update to: v3")
	assert.Contains(t, out, "Broker: broker-0")
}

func TestPlanSummaryYAML(t *testing.T) {
	addr, _ := startAPI(t)

	out, err := runCLI(t, "plan", "summary", "--api", addr, "-o", "yaml")
	require.NoError(t, err)

	var doc struct {
		Status string `yaml:"status"`
		Phases []struct {
			Name   string `yaml:"name"`
			Blocks []struct {
				Name string `yaml:"name"`
			} `yaml:"blocks"`
		} `yaml:"phases"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "PENDING", doc.Status)
	require.Len(t, doc.Phases, 1)
	assert.Equal(t, "Update to: v3", doc.Phases[0].Name)
	assert.Len(t, doc.Phases[0].Blocks, 2)
}

func TestPlanCommandsFromCLI(t *testing.T) {
	addr, p := startAPI(t)
	phase := p.Phases()[0]
	unit := phase.Units()[0]

	out, err := runCLI(t, "plan", "interrupt", "--api", addr, "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Received cmd: interrupt")
	assert.True(t, p.IsInterrupted())

	out, err = runCLI(t, "plan", "continue", "--api", addr, "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Received cmd: continue")
	assert.False(t, p.IsInterrupted())

	out, err = runCLI(t, "plan", "restart", phase.ID(), unit.ID(), "--api", addr, "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Received cmd: 'restart'")

	_, err = runCLI(t, "plan", "phase", "nope", "--api", addr, "-o", "text")
	assert.ErrorContains(t, err, "phase not found")
}

func TestUnknownOutputFormat(t *testing.T) {
	addr, _ := startAPI(t)

	_, err := runCLI(t, "plan", "phases", "--api", addr, "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}
