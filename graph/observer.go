package graph

import "time"

// Observer receives engine measurements. internal/metrics.Collector
// (Prometheus) and telemetry.GraphMetrics (OTel) implement it.
type Observer interface {
	ObserveTransition(from, to string)
	ObserveRun(outcome string, duration time.Duration)
	ObserveGovernance(verdict string)
	ObserveApproval(status string)
	ObserveCheckpointWrite(duration time.Duration, err error)
	ObserveToolExecution(tool, status string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(string, string)                   {}
func (nopObserver) ObserveRun(string, time.Duration)                   {}
func (nopObserver) ObserveGovernance(string)                           {}
func (nopObserver) ObserveApproval(string)                             {}
func (nopObserver) ObserveCheckpointWrite(time.Duration, error)        {}
func (nopObserver) ObserveToolExecution(string, string, time.Duration) {}

// MultiObserver fans measurements out to every non-nil observer.
func MultiObserver(obs ...Observer) Observer {
	var list multiObserver
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	switch len(list) {
	case 0:
		return nopObserver{}
	case 1:
		return list[0]
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) ObserveTransition(from, to string) {
	for _, o := range m {
		o.ObserveTransition(from, to)
	}
}

func (m multiObserver) ObserveRun(outcome string, d time.Duration) {
	for _, o := range m {
		o.ObserveRun(outcome, d)
	}
}

func (m multiObserver) ObserveGovernance(verdict string) {
	for _, o := range m {
		o.ObserveGovernance(verdict)
	}
}

func (m multiObserver) ObserveApproval(status string) {
	for _, o := range m {
		o.ObserveApproval(status)
	}
}

func (m multiObserver) ObserveCheckpointWrite(d time.Duration, err error) {
	for _, o := range m {
		o.ObserveCheckpointWrite(d, err)
	}
}

func (m multiObserver) ObserveToolExecution(tool, status string, d time.Duration) {
	for _, o := range m {
		o.ObserveToolExecution(tool, status, d)
	}
}
