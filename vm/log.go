package vm

import "github.com/tliron/commonlog"

var (
	gcLog    = commonlog.GetLogger("tagval.gc")
	rootsLog = commonlog.GetLogger("tagval.roots")
)
