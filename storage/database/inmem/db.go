package inmemdb

import (
	"sync"

	"github.com/gurudigital/pelangi/core/gamification"
	"github.com/gurudigital/pelangi/core/school"
	"github.com/gurudigital/pelangi/core/user"
)

// DB is an in-memory database. A single lock guards all tables so that repositories
// can join across them, the way the SQL repositories do.
type DB struct {
	sync.RWMutex

	users         map[string]*user.User
	classes       map[string]*school.Class
	students      map[string]*school.Student
	studentXp     map[string]*gamification.StudentXp
	xpEvents      []gamification.XpEvent
	badges        map[string]*gamification.Badge
	studentBadges map[string][]gamification.StudentBadge // {studentID: badges}
}

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		classes:       make(map[string]*school.Class),
		students:      make(map[string]*school.Student),
		studentXp:     make(map[string]*gamification.StudentXp),
		badges:        make(map[string]*gamification.Badge),
		studentBadges: make(map[string][]gamification.StudentBadge),
	}
}
