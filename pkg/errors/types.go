/*
 * Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in>
 * Copyright 2024-2025 The StrataSTOR Authors and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errors

import "net/http"

const (
	DomainConfig    Domain = "CONFIG"
	DomainServer    Domain = "SERVER"
	DomainLifecycle Domain = "LIFECYCLE"
	DomainMisc      Domain = "MISC"
	DomainSystem    Domain = "SYSTEM"
	DomainScheduler Domain = "SCHEDULER"
)

// ErrorCode represents unique error identifiers
type ErrorCode int

// Domain represents the subsystem where the error originated
type Domain string

type RodentError struct {
	Code    ErrorCode `json:"code"`
	Domain  Domain    `json:"domain"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	HTTPStatus int `json:"-"`

	// Metadata carries additional contextual information that doesn't fit
	// the standard fields: API responses, structured logging, debugging.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Error code ranges:
// 1000-1099: Configuration errors
// 1100-1199: Server errors
// 1500-1599: Lifecycle management
// 1600-1699: Misc/generic errors
// 1750-1799: System errors
// 2400-2499: Scheduler/IO/policy core errors (see scheduler.go)
const (
	// Configuration Errors (1000-1099)
	ConfigNotFound           = 1000 + iota // Config file not found
	ConfigInvalid                          // Invalid config format
	ConfigLoadFailed                       // Failed to load config
	ConfigWriteFailed                      // Failed to write config
	ConfigPermissionDenied                 // Permission denied accessing config
	ConfigDirectoryError                   // Config directory error
	ConfigValidationFailed                 // Config validation failed
	ConfigMarshalFailed                    // Config serialization failed
	ConfigUnmarshalFailed                  // Config deserialization failed
	ConfigHomeDirectoryError               // Error getting home directory
	ConfigReadError                        // Error reading config
	ConfigWriteError                       // Error writing config
	ConfigParseError                       // Error parsing config
)

const (
	// Server Errors (1100-1199)
	ServerStart             = 1100 + iota // Failed to start server
	ServerShutdown                        // Error during shutdown
	ServerBind                            // Failed to bind port
	ServerTimeout                         // Operation timeout
	ServerRequestValidation               // Request validation failed
	ServerResponseError                   // Response generation error
	ServerContextCancelled                // Context cancelled
	ServerInternalError                   // Internal server error
	ServerBadRequest                      // Bad request error
)

const (
	// Lifecycle Management (1500-1599)
	LifecyclePID      = 1500 + iota // PID file operation failed
	LifecycleShutdown               // Shutdown process error
	LifecycleSignal                 // Signal handling error
	LifecycleReload                 // Config reload failed
	LifecycleHook                   // Lifecycle hook error
	LifecycleState                  // State transition error
	LifecycleLock                   // Lock acquisition failed
	LifecycleCleanup                // Cleanup operation failed
	LifecycleDaemon                 // Daemon operation failed
)

const (
	// Misc/generic errors (1600-1699)
	RodentMisc       = 1600 + iota // Miscellaneous program error
	FSError                        // Filesystem error
	NotFoundError                  // Not found error
	LoggerError                    // Logger error
	CommandExecution                // External command execution failed
)

const (
	// System Errors (1750-1799)
	OperationFailed = 1750 + iota // Generic operation failed
	PermissionDenied              // Permission denied
)

var errorDefinitions = map[ErrorCode]struct {
	message    string
	domain     Domain
	httpStatus int
}{
	OperationFailed: {
		"Operation failed",
		DomainSystem,
		http.StatusInternalServerError,
	},
	PermissionDenied: {
		"Permission denied",
		DomainSystem,
		http.StatusForbidden,
	},
	RodentMisc: {
		"Miscellaneous error",
		DomainMisc,
		http.StatusInternalServerError,
	},
	FSError: {
		"Filesystem error",
		DomainMisc,
		http.StatusInternalServerError,
	},
	NotFoundError: {
		"Not found",
		DomainMisc,
		http.StatusNotFound,
	},
	LoggerError: {
		"Logger error",
		DomainMisc,
		http.StatusInternalServerError,
	},
	CommandExecution: {
		"External command execution failed",
		DomainMisc,
		http.StatusInternalServerError,
	},

	ConfigNotFound: {
		"Configuration file not found",
		DomainConfig,
		http.StatusNotFound,
	},
	ConfigInvalid: {
		"Invalid configuration format",
		DomainConfig,
		http.StatusBadRequest,
	},
	ConfigLoadFailed: {
		"Failed to load configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigWriteFailed: {
		"Failed to write configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigPermissionDenied: {
		"Permission denied accessing configuration",
		DomainConfig,
		http.StatusForbidden,
	},
	ConfigDirectoryError: {
		"Configuration directory error",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigValidationFailed: {
		"Configuration validation failed",
		DomainConfig,
		http.StatusBadRequest,
	},
	ConfigMarshalFailed: {
		"Failed to serialize configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigUnmarshalFailed: {
		"Failed to deserialize configuration",
		DomainConfig,
		http.StatusBadRequest,
	},
	ConfigHomeDirectoryError: {
		"Failed to resolve home directory",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigReadError: {
		"Failed to read configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigWriteError: {
		"Failed to write configuration",
		DomainConfig,
		http.StatusInternalServerError,
	},
	ConfigParseError: {
		"Failed to parse configuration",
		DomainConfig,
		http.StatusBadRequest,
	},

	ServerStart: {
		"Failed to start server",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerShutdown: {
		"Error during server shutdown",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerBind: {
		"Failed to bind server port",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerTimeout: {
		"Server operation timed out",
		DomainServer,
		http.StatusGatewayTimeout,
	},
	ServerRequestValidation: {
		"Request validation failed",
		DomainServer,
		http.StatusBadRequest,
	},
	ServerResponseError: {
		"Failed to generate response",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerContextCancelled: {
		"Request context cancelled",
		DomainServer,
		http.StatusRequestTimeout,
	},
	ServerInternalError: {
		"Internal server error",
		DomainServer,
		http.StatusInternalServerError,
	},
	ServerBadRequest: {
		"Bad request",
		DomainServer,
		http.StatusBadRequest,
	},

	LifecyclePID: {
		"PID file operation failed",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
	LifecycleShutdown: {
		"Shutdown process error",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
	LifecycleSignal: {
		"Signal handling error",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
	LifecycleReload: {
		"Configuration reload failed",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
	LifecycleHook: {
		"Lifecycle hook error",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
	LifecycleState: {
		"Lifecycle state transition error",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
	LifecycleLock: {
		"Failed to acquire single-instance lock",
		DomainLifecycle,
		http.StatusConflict,
	},
	LifecycleCleanup: {
		"Cleanup operation failed",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
	LifecycleDaemon: {
		"Daemon operation failed",
		DomainLifecycle,
		http.StatusInternalServerError,
	},
}
