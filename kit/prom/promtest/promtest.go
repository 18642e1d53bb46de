// Package promtest provides helpers for reading prometheus metrics in tests.
// It depends on the testing package and must only be imported from test files.
package promtest

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// FromHTTPResponse parses the metric families served in r and closes its body.
func FromHTTPResponse(r *http.Response) ([]*dto.MetricFamily, error) {
	defer r.Body.Close()

	dec := expfmt.NewDecoder(r.Body, expfmt.ResponseFormat(r.Header))
	var mfs []*dto.MetricFamily
	for {
		mf := new(dto.MetricFamily)
		if err := dec.Decode(mf); err != nil {
			if err == io.EOF {
				return mfs, nil
			}
			return nil, err
		}
		mfs = append(mfs, mf)
	}
}

// MustGather registers collectors in a fresh registry and gathers them.
func MustGather(tb testing.TB, collectors ...prometheus.Collector) []*dto.MetricFamily {
	tb.Helper()

	reg := prometheus.NewRegistry()
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			tb.Fatalf("error registering collector: %v", err)
		}
	}
	mfs, err := reg.Gather()
	if err != nil {
		tb.Fatalf("error while gathering metrics: %v", err)
	}
	return mfs
}

// MustFindMetric returns the metric of family name whose labels equal labels.
// If none matches it logs what is available and fails the test.
func MustFindMetric(tb testing.TB, mfs []*dto.MetricFamily, name string, labels map[string]string) *dto.Metric {
	tb.Helper()

	var fam *dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetName() == name {
			fam = mf
			break
		}
	}
	if fam == nil {
		tb.Logf("metric family with name %q not found", name)
		tb.Log("available names:")
		for _, mf := range mfs {
			tb.Logf("\t%s", mf.GetName())
		}
		tb.FailNow()
		return nil
	}

	for _, m := range fam.Metric {
		if labelsMatch(m, labels) {
			return m
		}
	}

	tb.Logf("found metric family with name %q, but metric with labels %v not found", name, labels)
	for _, m := range fam.Metric {
		pairs := make([]string, len(m.Label))
		for i, l := range m.Label {
			pairs[i] = fmt.Sprintf("%q: %q", l.GetName(), l.GetValue())
		}
		tb.Logf("\t%s", strings.Join(pairs, ", "))
	}
	tb.FailNow()
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	if len(m.Label) != len(labels) {
		return false
	}
	for _, l := range m.Label {
		if v, ok := labels[l.GetName()]; !ok || v != l.GetValue() {
			return false
		}
	}
	return true
}

// CounterValue returns the value of the matching counter.
func CounterValue(tb testing.TB, mfs []*dto.MetricFamily, name string, labels map[string]string) float64 {
	tb.Helper()
	return MustFindMetric(tb, mfs, name, labels).GetCounter().GetValue()
}

// GaugeValue returns the value of the matching gauge.
func GaugeValue(tb testing.TB, mfs []*dto.MetricFamily, name string, labels map[string]string) float64 {
	tb.Helper()
	return MustFindMetric(tb, mfs, name, labels).GetGauge().GetValue()
}
