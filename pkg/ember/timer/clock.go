package timer

import "time"

func nanoNow() int64 { return time.Now().UnixNano() }
