package store

import (
	"fmt"
	"time"

	"github.com/grazelabs/corral/pkg/series"
)

// Row key layouts:
//
//	timeseries  {key}#{revday}
//	events      {key}#{name}#{revday}
//	activity    {parent}#{revday}#{reader} plus t#{revday}#{reader}
//
// The reverse day key makes forward scans visit newer days first.

// activityTotalParent is the synthetic parent every activity increment is
// rolled up under. Real parent ids are at least three characters, so the
// single character cannot collide.
const activityTotalParent = "t"

func seriesRowKey(key string, day int64) string {
	return fmt.Sprintf("%s#%s", key, series.ReverseDayKey(day))
}

func eventsRowKey(key, name string, day int64) string {
	return fmt.Sprintf("%s#%s#%s", key, name, series.ReverseDayKey(day))
}

func activityRowKey(parent string, day int64, reader string) string {
	return fmt.Sprintf("%s#%s#%s", parent, series.ReverseDayKey(day), reader)
}

func activityDayPrefix(parent string, day int64) string {
	return fmt.Sprintf("%s#%s", parent, series.ReverseDayKey(day))
}

func metadataRowKey(objectName, objectKey string) string {
	return fmt.Sprintf("%s#%s", objectName, objectKey)
}

// hourKey formats the UTC hour of ts as two digits for activity qualifiers.
func hourKey(ts int64) string {
	return fmt.Sprintf("%02d", time.Unix(ts, 0).UTC().Hour())
}
