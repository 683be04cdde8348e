package registry

import "errors"

// State 描述某个 id 在注册表中的生命周期：Unrequested → InFlight → {Loaded, Failed}。
// Loaded 与 Failed 在进程生命周期内是终态。
type State string

const (
	StateUnrequested State = "unrequested"
	StateInFlight    State = "in_flight"
	StateLoaded      State = "loaded"
	StateFailed      State = "failed"
)

// ErrUnavailable 表示该 id 的术语不可用（回源或解析失败）。调用方应降级处理，
// 例如把引用的术语视为未校验。
var ErrUnavailable = errors.New("terminology unavailable")

// ErrWaitTimeout 表示等待进行中的加载时调用方的 context 先行结束。
var ErrWaitTimeout = errors.New("timed out waiting for in-flight terminology load")

// Status 是单个 id 的诊断快照。
type Status struct {
	ID       string `json:"id"`
	State    State  `json:"state"`
	Name     string `json:"name,omitempty"`
	Sections int    `json:"sections,omitempty"`
}
