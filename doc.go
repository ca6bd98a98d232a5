// Package pluto is a data-access layer over authors, courses, covers and
// tags. A UnitOfWork opens a store session, hands out repositories whose
// query results are tracked for changes, and commits every staged insert,
// update and delete in one transaction.
//
//	s, db, err := pluto.OpenStore(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	err = pluto.Run(ctx, s, func(uow pluto.UnitOfWork) error {
//		author, err := uow.Authors().Get(ctx, 1)
//		if err != nil {
//			return err
//		}
//		author.Name = "Mosh Hamedani"
//		_, err = uow.Commit(ctx)
//		return err
//	})
package pluto
