package solana

// ShutdownListeners stops the bridge event stream and the connection monitor.
func (s *solana) ShutdownListeners() {
	s.eventHandlerMutex.Lock()
	if s.eventHandler != nil {
		s.eventHandler.Stop()
		s.eventHandler = nil
	}
	s.eventHandlerMutex.Unlock()

	s.monitorMutex.RLock()
	defer s.monitorMutex.RUnlock()
	if s.monitor != nil {
		s.monitor.Stop()
	}
}
