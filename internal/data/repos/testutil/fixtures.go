package testutil

import (
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/icees-go/icees-api/internal/data/loader"
	"github.com/icees-go/icees-api/internal/platform/dbctx"
)

// PatientRecords is a small patient table: twelve 2010 records with
// AgeStudyStart 0-2 and three 2011 records.
const PatientRecords = `
PatientId,year,AgeStudyStart,Sex2,Albuterol,AvgDailyPM2.5Exposure,AsthmaDx,ObesityDx
varchar(255),int,varchar(255),varchar(255),varchar(255),int,int,int
1,2010,0-2,Male,0,1,0,0
2,2010,0-2,Female,1,1,1,0
3,2010,0-2,Male,>1,1,1,1
4,2010,0-2,Female,0,2,0,0
5,2010,0-2,Male,1,2,1,0
6,2010,0-2,Female,>1,2,1,1
7,2010,0-2,Male,0,3,0,0
8,2010,0-2,Female,1,3,0,1
9,2010,0-2,Male,>1,3,1,1
10,2010,0-2,Female,0,4,0,0
11,2010,0-2,Male,1,4,1,0
12,2010,0-2,Female,>1,4,1,1
13,2011,3-17,Male,0,5,0,0
14,2011,3-17,Female,1,5,1,1
15,2011,3-17,Male,>1,5,0,1
`

// LoadCSV creates table from a CSV document whose first row names the
// columns, second row gives their SQL types, and remaining rows are records.
// Empty cells are stored as NULL.
func LoadCSV(tb testing.TB, db *gorm.DB, table, doc string) {
	tb.Helper()
	l := loader.New(db, nil, Logger(tb))
	if _, err := l.Load(dbctx.Context{}, table, strings.NewReader(doc), loader.Options{TypeRow: true}); err != nil {
		tb.Fatalf("load %s: %v", table, err)
	}
}

func IntPtr(v int) *int { return &v }
