package models

import "time"

// MachineState enumerates the liveness states of an execution machine.
type MachineState string

const (
	MachineStateOnline  MachineState = "online"
	MachineStateOffline MachineState = "offline"
	MachineStateBusy    MachineState = "busy"
	MachineStateIdle    MachineState = "idle"
)

// MachineStatus is the heartbeat-based liveness record of one execution
// machine. Only that machine's own heartbeat loop writes it.
type MachineStatus struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	MachineID     string       `gorm:"type:text;uniqueIndex;not null" json:"machine_id"`
	MachineIP     string       `json:"machine_ip,omitempty"`
	MachineName   string       `json:"machine_name,omitempty"`
	Status        MachineState `gorm:"type:text;index;not null;default:'offline'" json:"status"`
	LastHeartbeat time.Time    `gorm:"index;not null" json:"last_heartbeat"`

	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`

	CurrentTasks int `gorm:"not null;default:0" json:"current_tasks"`
	MaxTasks     int `gorm:"not null;default:5" json:"max_tasks"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

type MachineStatuses []*MachineStatus

// Available reports whether the machine can take work: it must be
// online and have heartbeated within the liveness window.
func (m *MachineStatus) Available(now time.Time, window time.Duration) bool {
	return m.Status == MachineStateOnline && now.Sub(m.LastHeartbeat) < window
}

// LoadRatio is the fraction of the machine's task capacity in use.
func (m *MachineStatus) LoadRatio() float64 {
	if m.MaxTasks <= 0 {
		return 1
	}
	return float64(m.CurrentTasks) / float64(m.MaxTasks)
}
