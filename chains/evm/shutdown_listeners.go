package evm

// ShutdownListeners stops the bridge log stream and the connection monitor.
func (e *evm) ShutdownListeners() {
	e.eventHandlerMutex.Lock()
	if e.eventHandler != nil {
		e.eventHandler.Stop()
		e.eventHandler = nil
	}
	e.eventHandlerMutex.Unlock()

	e.monitorMutex.RLock()
	defer e.monitorMutex.RUnlock()
	if e.monitor != nil {
		e.monitor.Stop()
	}
}
