package main

// Notifier blank imports: each import registers an urgent-channel provider.

import (
	_ "github.com/Strob0t/RepairDesk/internal/adapter/email"
	_ "github.com/Strob0t/RepairDesk/internal/adapter/slack"
)
