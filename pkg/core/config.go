package core

import (
	"sync"
)

// Config holds process-wide defaults shared by components that were not
// handed an explicit LLM.
type Config struct {
	DefaultLLM       LLM
	ConcurrencyLevel int
}

var (
	globalConfig = &Config{
		// default concurrency 1
		ConcurrencyLevel: 1,
	}
	configMu sync.RWMutex
)

// SetDefaultLLM sets the process-wide default LLM.
func SetDefaultLLM(llm LLM) {
	configMu.Lock()
	defer configMu.Unlock()
	globalConfig.DefaultLLM = llm
}

// GetDefaultLLM returns the process-wide default LLM, or nil if unset.
func GetDefaultLLM() LLM {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig.DefaultLLM
}

// SetConcurrencyOptions sets the default parallelism for batch evaluation.
func SetConcurrencyOptions(level int) {
	configMu.Lock()
	defer configMu.Unlock()
	if level > 0 {
		globalConfig.ConcurrencyLevel = level
	} else {
		globalConfig.ConcurrencyLevel = 1 // Reset to default value for invalid inputs
	}
}

// GetConcurrencyLevel returns the default parallelism for batch evaluation.
func GetConcurrencyLevel() int {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig.ConcurrencyLevel
}
