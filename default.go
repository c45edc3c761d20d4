// Completion: 100% - debug switches complete
package tinyavr

import "github.com/xyproto/env/v2"

// VerboseMode enables selection and encoding traces on stderr.
var VerboseMode = env.Bool("TINYAVR_VERBOSE")

// DebugMode enables graph dumps after every node replacement.
var DebugMode = env.Bool("TINYAVR_DEBUG")
